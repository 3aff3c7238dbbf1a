// Package stages advances memories and patterns through the conceptual →
// semantic → syntactic maturation pipeline (spec §4.6). Transitions are
// monotonic and idempotent; a single ProcessAll call runs every phase in
// the order spec §4.6 specifies.
package stages

import (
	"context"

	"engram/internal/encoder"
	"engram/internal/retriever"
	"engram/internal/storage"
)

// Config holds the tunable stage-transition thresholds (spec §4.6).
type Config struct {
	ThetaS1 float64 // conceptual->semantic strength floor
	AccessS1 int
	AssocS1  int // minimum associations

	ThetaS2         float64 // semantic->syntactic strength floor
	AccessS2        int
	RelationshipsS2 int
	ConceptCountS2  int

	PatternSyntacticMinMemories  int
	PatternSyntacticMinConfidence float64
	PatternSemanticMinMemories   int
	PatternSemanticMinConfidence  float64

	// EnrichBatchLimit caps how many still-conceptual memories the
	// capped enrichment pass touches per ProcessAll call.
	EnrichBatchLimit int
	// RelatedTopK bounds how many retriever-selected related memories
	// feed into association top-up and Procedure construction.
	RelatedTopK int
}

// DefaultConfig gives reasonable, spec-consistent defaults; the spec names
// the thresholds but leaves exact values to the implementation (Open
// Question, resolved in DESIGN.md).
func DefaultConfig() Config {
	return Config{
		ThetaS1:  0.4,
		AccessS1: 2,
		AssocS1:  1,

		ThetaS2:         0.6,
		AccessS2:        4,
		RelationshipsS2: 2,
		ConceptCountS2:  3,

		PatternSyntacticMinMemories:   5,
		PatternSyntacticMinConfidence: 0.7,
		PatternSemanticMinMemories:    3,
		PatternSemanticMinConfidence:  0.5,

		EnrichBatchLimit: 50,
		RelatedTopK:      5,
	}
}

// Report tallies one ProcessAll pass.
type Report struct {
	PromotedToSemantic  int
	PromotedToSyntactic int
	PatternsAdvanced    int
	Enriched            int
}

// Pipeline runs stage transitions over a Storage, using a Retriever to
// find related memories for association top-up and Procedure construction
// and an encoder.Registry to re-derive entity/relationship semantic keys
// (spec §4.6: "reuses the Encoder's extractor registry rather than a
// parallel implementation").
type Pipeline struct {
	store     storage.Storage
	retriever *retriever.Retriever
	registry  *encoder.Registry
	config    Config
}

// New creates a Pipeline. retriever may be nil (association top-up and
// Procedure construction then use only what's already on the memory).
func New(store storage.Storage, r *retriever.Retriever, registry *encoder.Registry, config Config) *Pipeline {
	if registry == nil {
		registry = encoder.NewRegistry()
	}
	return &Pipeline{store: store, retriever: r, registry: registry, config: config}
}

// ProcessAll runs every stage-transition phase once, in spec §4.6's
// required order: conceptual→semantic, then semantic→syntactic, then
// pattern stage advancement, then capped conceptual enrichment.
func (p *Pipeline) ProcessAll(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := p.conceptualToSemantic(ctx, report); err != nil {
		return report, err
	}
	if err := p.semanticToSyntactic(ctx, report); err != nil {
		return report, err
	}
	if err := p.advancePatterns(report); err != nil {
		return report, err
	}
	if err := p.enrichConceptualBatch(ctx, report); err != nil {
		return report, err
	}

	return report, nil
}
