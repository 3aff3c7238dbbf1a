// Package dialectic implements the Dialectic Engine (spec §4.7): the
// thesis/antithesis/synthesis cycle that reconciles a newly matured memory
// against the pattern it belongs to, detects contradictions against the
// pattern's current belief, and — once enough antitheses accumulate —
// resolves the cycle into a Synthesis and routes it through the Output
// Decider (§4.7.2) toward a durable Rule or Skill artifact.
package dialectic

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"engram/internal/embeddings"
	"engram/internal/enricher"
	"engram/internal/errs"
	"engram/internal/storage"
	"engram/internal/types"
)

// SimPat is the minimum cosine similarity between a memory and a pattern's
// centroid embedding for the memory to be considered a member (spec §4.7).
const SimPat = 0.7

// GroupSimilarityFloor is the looser threshold used when no existing
// pattern matches and the engine looks for an ungrouped cluster of similar
// memories to found a new Pattern from.
const GroupSimilarityFloor = SimPat - 0.1

// Config holds the Dialectic Engine's tunable thresholds (spec §4.7).
type Config struct {
	SimPat              float64
	GroupSimilarityFloor float64
	MinPatternMembers   int     // MIN_PATTERN: candidates needed to found a Pattern
	MinAntitheses       int     // MIN_ANTI: antitheses needed to trigger synthesis
	RuleMinConfidence   float64 // pattern confidence needed to auto-publish
	ConfidenceIncrement float64 // per-corroborating-memory confidence bump
	AutoPublish         bool
}

// DefaultConfig mirrors spec.md's named constants.
func DefaultConfig() Config {
	return Config{
		SimPat:               SimPat,
		GroupSimilarityFloor: GroupSimilarityFloor,
		MinPatternMembers:    3,
		MinAntitheses:        1,
		RuleMinConfidence:    0.7,
		ConfidenceIncrement:  0.05,
		AutoPublish:          false,
	}
}

// ArtifactPublisher is the nil-safe hook the Dialectic Engine calls once a
// Pattern's confidence clears RuleMinConfidence and AutoPublish is set. No
// concrete Rule/Skill Writer is wired here; a caller that wants publishing
// supplies one.
type ArtifactPublisher interface {
	Publish(ctx context.Context, pattern *types.Pattern, synthesis *types.Synthesis) error
}

// Outcome reports what ProcessMemory did with one memory.
type Outcome struct {
	PatternID      string
	Matched        bool // an existing Pattern or candidate group was found
	PatternCreated bool
	AntithesisAdded *types.Antithesis
	Synthesis       *types.Synthesis
	Published       bool
}

// Engine runs the thesis/antithesis/synthesis decision tree over matured
// memories, backed by a Storage for pattern/thesis/antithesis/synthesis
// persistence and an Embedder for similarity scoring. enr drives the
// content-generation call shapes (pattern naming, synthesis narration,
// output classification); fallback is always consulted when enr returns
// ErrEnricherUnavailable.
type Engine struct {
	store     storage.Storage
	embedder  embeddings.Embedder
	enr       enricher.Enricher
	fallback  *enricher.HeuristicEnricher
	publisher ArtifactPublisher
	config    Config
}

// New builds an Engine. enr may be nil, in which case the heuristic
// fallback alone drives every content-generation call. publisher may be
// nil, in which case AutoPublish is a no-op.
func New(store storage.Storage, embedder embeddings.Embedder, enr enricher.Enricher, publisher ArtifactPublisher, config Config) *Engine {
	return &Engine{
		store:     store,
		embedder:  embedder,
		enr:       enr,
		fallback:  enricher.NewHeuristic(),
		publisher: publisher,
		config:    config,
	}
}

// ProcessMemory runs spec §4.7's three-step decision tree for one matured
// memory: find or create the Pattern it belongs to, then process it
// against that Pattern's active Thesis, or found a new Thesis from it when
// none is active.
func (e *Engine) ProcessMemory(ctx context.Context, m *types.Memory) (*Outcome, error) {
	if !m.HasEmbedding() {
		return &Outcome{}, nil
	}

	pattern, created, err := e.findOrCreatePattern(ctx, m)
	if err != nil {
		return nil, err
	}
	if pattern == nil {
		return &Outcome{}, nil
	}

	outcome := &Outcome{PatternID: pattern.ID, Matched: true, PatternCreated: created}

	if err := e.attachMember(pattern, m); err != nil {
		return outcome, err
	}

	// A pattern with no active thesis is either brand new or just came out
	// of a resolved cycle; either way the next matching memory founds a
	// fresh thesis and opens a new cycle.
	thesis, err := e.store.GetActiveThesisForPattern(pattern.ID)
	if err != nil {
		thesis, err = e.openThesis(pattern, m)
		if err != nil {
			return outcome, err
		}
		// A newly founded pattern's whole group becomes the new thesis's
		// exemplars. m is already an exemplar, so it is not tested against
		// the thesis it founded.
		if created {
			thesis.ExemplarMemoryIDs = append([]string(nil), pattern.MemoryIDs...)
			if err := e.store.UpdateThesis(thesis); err != nil {
				return outcome, err
			}
		}
		return outcome, nil
	}

	if err := e.processAgainstThesis(ctx, pattern, thesis, m, outcome); err != nil {
		return outcome, err
	}

	return outcome, nil
}

// findOrCreatePattern implements spec §4.7 steps 1-2: first look for an
// existing Pattern whose centroid is within SimPat of m; failing that,
// gather a candidate group of working/short_term/long_term memories (of any
// stage) similar to m at
// the looser GroupSimilarityFloor and, once MinPatternMembers are found,
// found a new Pattern from them.
func (e *Engine) findOrCreatePattern(ctx context.Context, m *types.Memory) (*types.Pattern, bool, error) {
	patterns, err := e.store.ListPatterns()
	if err != nil {
		return nil, false, err
	}

	var best *types.Pattern
	bestSim := 0.0
	for _, p := range patterns {
		if len(p.Embedding) == 0 {
			continue
		}
		sim := embeddings.CosineSimilarity(m.Embedding, p.Embedding)
		if sim >= e.config.SimPat && sim > bestSim {
			best, bestSim = p, sim
		}
	}
	if best != nil {
		return best, false, nil
	}

	candidates, err := e.store.QueryMemories(storage.MemoryFilter{
		Tiers: []types.Tier{types.TierWorking, types.TierShortTerm, types.TierLongTerm},
	})
	if err != nil {
		return nil, false, err
	}

	group := []*types.Memory{m}
	for _, c := range candidates {
		if c.ID == m.ID || !c.HasEmbedding() {
			continue
		}
		if embeddings.CosineSimilarity(m.Embedding, c.Embedding) >= e.config.GroupSimilarityFloor {
			group = append(group, c)
		}
	}
	if len(group) < e.config.MinPatternMembers {
		return nil, false, nil
	}

	naming, err := e.nameGroup(ctx, group)
	if err != nil {
		return nil, false, err
	}

	pattern := types.NewPattern(naming.Name, naming.Description)
	pattern.Embedding = centroid(group)
	for _, gm := range group {
		pattern.MemoryIDs = append(pattern.MemoryIDs, gm.ID)
	}
	if err := e.store.StorePattern(pattern); err != nil {
		return nil, false, err
	}
	return pattern, true, nil
}

func (e *Engine) nameGroup(ctx context.Context, group []*types.Memory) (enricher.PatternNaming, error) {
	pg := enricher.PatternMemberGroup{Memories: group}
	if e.enr != nil {
		if naming, err := e.enr.NamePattern(ctx, pg); err == nil {
			return naming, nil
		}
	}
	return e.fallback.NamePattern(ctx, pg)
}

func (e *Engine) attachMember(pattern *types.Pattern, m *types.Memory) error {
	for _, id := range pattern.MemoryIDs {
		if id == m.ID {
			return nil
		}
	}
	pattern.MemoryIDs = append(pattern.MemoryIDs, m.ID)
	pattern.UsageCount++
	pattern.Confidence += e.config.ConfidenceIncrement
	if pattern.Confidence > 1 {
		pattern.Confidence = 1
	}
	pattern.UpdatedAt = m.UpdatedAt
	return e.store.UpdatePattern(pattern)
}

func (e *Engine) openThesis(pattern *types.Pattern, m *types.Memory) (*types.Thesis, error) {
	thesis := types.NewThesis(pattern.ID, m.Content)
	thesis.ExemplarMemoryIDs = []string{m.ID}
	if err := e.store.StoreThesis(thesis); err != nil {
		return nil, err
	}
	cycle := types.NewDialecticCycle(pattern.ID, thesis.ID)
	if err := e.store.StoreCycle(cycle); err != nil {
		return nil, err
	}
	if pattern.DialecticPhase != types.PhaseThesis {
		pattern.DialecticPhase = types.PhaseThesis
		if err := e.store.UpdatePattern(pattern); err != nil {
			return nil, err
		}
	}
	return thesis, nil
}

// processAgainstThesis implements spec §4.7 step 3: test m against the
// active Thesis's exemplars for a contradiction; if none is found, m
// corroborates the Thesis. If a contradiction is found, record an
// Antithesis and, once MinAntitheses have accumulated, resolve the cycle
// into a Synthesis.
func (e *Engine) processAgainstThesis(ctx context.Context, pattern *types.Pattern, thesis *types.Thesis, m *types.Memory, outcome *Outcome) error {
	exemplars, err := e.loadExemplars(thesis)
	if err != nil {
		return err
	}

	var kind types.ContradictionType
	var found bool
	for _, ex := range exemplars {
		if k, ok := detectContradiction(m, ex); ok {
			kind, found = k, true
			break
		}
	}

	if !found {
		thesis.ExemplarMemoryIDs = append(thesis.ExemplarMemoryIDs, m.ID)
		return e.store.UpdateThesis(thesis)
	}

	antithesis := types.NewAntithesis(thesis.ID, m.Content, kind)
	antithesis.ExemplarMemoryIDs = []string{m.ID}
	if err := e.store.StoreAntithesis(antithesis); err != nil {
		return err
	}
	outcome.AntithesisAdded = antithesis
	thesis.Status = types.ThesisChallenged
	if err := e.store.UpdateThesis(thesis); err != nil {
		return err
	}

	antitheses, err := e.store.ListAntithesesForThesis(thesis.ID)
	if err != nil {
		return err
	}
	if len(antitheses) < e.config.MinAntitheses {
		return nil
	}

	cycle, err := e.store.GetActiveCycleForPattern(pattern.ID)
	if err != nil {
		return fmt.Errorf("dialectic: no active cycle for pattern %s: %w", pattern.ID, err)
	}

	synthesis, err := e.runSynthesis(ctx, pattern, thesis, antitheses, exemplars, m)
	if err != nil {
		return err
	}
	outcome.Synthesis = synthesis

	if err := e.store.ResolveCycleWithSynthesis(cycle, synthesis, thesis); err != nil {
		return err
	}
	pattern.DialecticPhase = types.PhaseSynthesis
	if err := e.store.UpdatePattern(pattern); err != nil {
		return err
	}

	if e.publisher != nil && e.config.AutoPublish && pattern.Confidence >= e.config.RuleMinConfidence {
		if err := e.publisher.Publish(ctx, pattern, synthesis); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrArtifactWrite, err)
		}
		outcome.Published = true
	}

	return nil
}

func (e *Engine) loadExemplars(thesis *types.Thesis) ([]*types.Memory, error) {
	exemplars := make([]*types.Memory, 0, len(thesis.ExemplarMemoryIDs))
	for _, id := range thesis.ExemplarMemoryIDs {
		mem, err := e.store.GetMemory(id, types.ReadUntracked)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		exemplars = append(exemplars, mem)
	}
	return exemplars, nil
}

func centroid(memories []*types.Memory) []float32 {
	if len(memories) == 0 {
		return nil
	}
	dim := len(memories[0].Embedding)
	sum := make([]float64, dim)
	n := 0
	for _, m := range memories {
		if len(m.Embedding) != dim {
			continue
		}
		for i, v := range m.Embedding {
			sum[i] += float64(v)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, dim)
	for i, v := range sum {
		out[i] = float32(v / float64(n))
	}
	return out
}

// sortMemoriesByCreated orders memories oldest-first, matching the order
// Procedure construction uses in the Stage Pipeline.
func sortMemoriesByCreated(memories []*types.Memory) {
	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})
}
