// Package encoder turns an observed tool invocation into a working-tier
// Memory: a human-readable summary, the semantic keys tools leave behind,
// category/error tags, and (time and an Embedder permitting) its initial
// associations and embedding.
package encoder

import (
	"context"
	"strings"

	"engram/internal/embeddings"
	"engram/internal/storage"
	"engram/internal/types"
)

// DefaultMaxAssociations bounds how many prior-memory ids Encode attaches
// to a new memory's associations on the full (non-fast) path.
const DefaultMaxAssociations = 5

// AssociationFinder is the subset of the Store the Encoder needs to find
// related memories by session recency and semantic-key overlap. It is
// satisfied by storage.Storage; encoder tests use a narrower fake.
type AssociationFinder interface {
	QueryMemories(filter storage.MemoryFilter) ([]*types.Memory, error)
}

// Encoder builds Memory records from ToolUsage observations (spec §4.3).
type Encoder struct {
	store           AssociationFinder
	embedder        embeddings.Embedder
	registry        *Registry
	maxAssociations int
}

// New creates an Encoder. store may be nil (associations are then always
// empty); embedder may be nil (embeddings are then always deferred).
func New(store AssociationFinder, embedder embeddings.Embedder) *Encoder {
	return &Encoder{
		store:           store,
		embedder:        embedder,
		registry:        NewRegistry(),
		maxAssociations: DefaultMaxAssociations,
	}
}

// WithRegistry overrides the default extractor registry, e.g. to register
// additional tool-specific extractors.
func (e *Encoder) WithRegistry(r *Registry) *Encoder {
	e.registry = r
	return e
}

// Encode is the full encode path: content, semantic keys, tags,
// associations, and — if an Embedder is configured — an inline embedding.
// A failed or absent Embedder never fails Encode; the embedding is simply
// left for the backfill runner (spec §4.3 failure semantics).
func (e *Encoder) Encode(ctx context.Context, tu types.ToolUsage) (*types.Memory, error) {
	m := e.encodeBase(tu)
	m.Metadata.Associations = e.findAssociations(tu.SessionID, m.Metadata.SemanticKeys)

	if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, m.Content); err == nil {
			m.Embedding = vec
		}
	}

	return m, nil
}

// EncodeFast is the hot-path variant: it always omits the embedding and
// association lookup, so a Hook handler never blocks on the Store or the
// Embedder. Callers that want those fields enqueue a `memory` Worker task
// instead.
func (e *Encoder) EncodeFast(tu types.ToolUsage) *types.Memory {
	return e.encodeBase(tu)
}

// encodeBase builds everything that needs no I/O: content, semantic keys,
// and tags.
func (e *Encoder) encodeBase(tu types.ToolUsage) *types.Memory {
	m := types.NewMemory(tu.SessionID, types.SourceToolUse)
	m.Metadata.ToolName = tu.ToolName
	m.Metadata.ToolInput = tu.ToolInput
	m.Metadata.ToolOutput = truncate(tu.ToolOutput, maxOutputChars)
	// Directly observed, not inferred — starts at full confidence; later
	// components (Stage Pipeline, Dialectic Engine) adjust it as evidence
	// accumulates.
	m.Metadata.Confidence = 1.0

	m.Content = buildContent(tu.ToolName, tu.ToolInput, tu.ToolOutput, tu.ToolError)
	m.Metadata.SemanticKeys = e.semanticKeys(tu)
	m.Metadata.Tags = buildTags(tu.ToolName, tu.ToolError != "")

	return m
}

func (e *Encoder) semanticKeys(tu types.ToolUsage) []types.SemanticKey {
	keys := []types.SemanticKey{{Key: "tool", Value: strings.ToLower(tu.ToolName), Weight: 1.0}}
	if e.registry != nil {
		keys = append(keys, e.registry.Extract(tu.ToolName, tu.ToolInput)...)
	} else {
		keys = append(keys, extractGeneric(tu.ToolInput)...)
	}
	if tu.ToolError != "" {
		keys = append(keys, types.SemanticKey{Key: "has_error", Value: "true", Weight: 1.0})
	}
	return keys
}

func buildTags(toolName string, hasError bool) []string {
	tags := []string{strings.ToLower(toolName), category(toolName)}
	if hasError {
		tags = append(tags, "error")
	}
	return tags
}

// findAssociations picks up to maxAssociations memory ids from the same
// session that share at least one (key, value) with the new memory,
// ranked by recency (QueryMemories already returns newest-first).
func (e *Encoder) findAssociations(sessionID string, keys []types.SemanticKey) []string {
	if e.store == nil || sessionID == "" {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string

	for _, k := range keys {
		if k.Key == "tool" || k.Key == "has_error" {
			// Too coarse to be useful as an association signal on their
			// own — every memory in a session shares these.
			continue
		}
		candidates, err := e.store.QueryMemories(storage.MemoryFilter{
			SessionID:     sessionID,
			SemanticKey:   k.Key,
			SemanticValue: k.Value,
			Limit:         e.maxAssociations,
		})
		if err != nil {
			continue
		}
		for _, c := range candidates {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			ids = append(ids, c.ID)
			if len(ids) >= e.maxAssociations {
				return ids
			}
		}
	}

	return ids
}
