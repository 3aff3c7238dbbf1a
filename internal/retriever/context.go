package retriever

import (
	"context"
	"fmt"
	"strings"

	"engram/internal/storage"
	"engram/internal/types"
)

// ContextDelimiterOpen/Close frame each retrieved memory for injection into
// an assistant's context window.
const (
	ContextDelimiterOpen  = "<!-- engram:memory -->"
	ContextDelimiterClose = "<!-- /engram:memory -->"
)

// RetrieveContext implements spec §4.4's context-retrieval convenience:
// hybrid search scoped to sessionID first, topped up with a long-term-only
// pure-vector search when the session-scoped results fall short of topK,
// deduplicated by memory id.
func (r *Retriever) RetrieveContext(ctx context.Context, prompt, sessionID string, topK int) ([]ScoredMemory, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	filter := storage.MemoryFilter{SessionID: sessionID}
	primary, err := r.Search(ctx, prompt, filter, topK)
	if err != nil {
		return nil, err
	}
	if len(primary) >= topK {
		return primary, nil
	}

	seen := make(map[string]bool, len(primary))
	for _, sm := range primary {
		seen[sm.Memory.ID] = true
	}

	shortfall := topK - len(primary)
	topUp, err := r.pureVectorSearch(ctx, prompt, storage.MemoryFilter{Tiers: []types.Tier{types.TierLongTerm}}, shortfall, seen)
	if err != nil {
		return primary, nil // best-effort top-up; primary results still stand
	}

	return append(primary, topUp...), nil
}

// pureVectorSearch runs only the vector phase (no lexical candidates),
// used by RetrieveContext's long-term top-up.
func (r *Retriever) pureVectorSearch(ctx context.Context, query string, filter storage.MemoryFilter, limit int, exclude map[string]bool) ([]ScoredMemory, error) {
	if limit <= 0 || r.embedder == nil {
		return nil, nil
	}

	candidates, err := r.store.QueryMemories(storage.MemoryFilter{Tiers: filter.Tiers, Limit: 0})
	if err != nil {
		return nil, err
	}

	pool := make(map[string]*types.Memory, len(candidates))
	for _, m := range candidates {
		if exclude[m.ID] {
			continue
		}
		pool[m.ID] = m
	}

	vecScores, err := r.vectorPhase(ctx, query, filter, pool)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredMemory, 0, len(vecScores))
	for id, vc := range vecScores {
		out = append(out, ScoredMemory{
			Memory:        pool[id],
			VectorScore:   vc.similarity,
			RecencyScore:  recencyScore(pool[id]),
			CombinedScore: vc.similarity,
		})
	}
	sortByCombinedDesc(out)
	return capResults(out, limit), nil
}

// FormatForInjection renders scored memories in a delimited framing
// suitable for injection into an assistant's context window.
func FormatForInjection(results []ScoredMemory) string {
	var b strings.Builder
	for _, sm := range results {
		fmt.Fprintf(&b, "%s\n%s\n%s\n\n", ContextDelimiterOpen, sm.Memory.Content, ContextDelimiterClose)
	}
	return strings.TrimRight(b.String(), "\n")
}
