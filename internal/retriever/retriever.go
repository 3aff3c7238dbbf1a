// Package retriever implements the hybrid lexical+vector search described
// in spec §4.4: a Store-backed lexical phase, an optional chromem-go or
// linear-scan vector phase, merged either by weighted sum (default) or
// reciprocal rank fusion.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"engram/internal/embeddings"
	"engram/internal/storage"
	"engram/internal/types"
)

// MergeStrategy selects how the lexical and vector candidate sets are
// combined into a single ranked list.
type MergeStrategy string

const (
	// MergeWeighted combines normalized per-signal scores with Weights
	// (spec §4.4 step 4). This is the default, matching spec.md exactly.
	MergeWeighted MergeStrategy = "weighted"
	// MergeRRF combines the lexical and vector rank positions via
	// Reciprocal Rank Fusion, grounded in the teacher's
	// EmbeddingConfig.UseHybridSearch/RRFParameter
	// (internal/embeddings/embedder.go), offered here as an alternative
	// merge strategy with the same configuration surface.
	MergeRRF MergeStrategy = "rrf"
)

// HalfLife is the recency-decay half-life used in recency_score (spec §4.4
// step 4).
const HalfLife = 3_600_000 * time.Millisecond

// VectorSimilarityFloor discards vector candidates below this cosine
// similarity (spec §4.4 step 2).
const VectorSimilarityFloor = 0.2

// Weights are the per-signal multipliers for the weighted merge.
type Weights struct {
	Lexical  float64
	Vector   float64
	Recency  float64
	Strength float64
}

// DefaultWeights gives lexical and vector signals equal primary weight,
// with recency and strength as smaller tie-breaking factors.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.35, Vector: 0.35, Recency: 0.15, Strength: 0.15}
}

// Config configures a Retriever.
type Config struct {
	TopK         int
	Weights      Weights
	Merge        MergeStrategy
	RRFParameter int // k in 1/(k+rank); teacher default 60
}

// DefaultConfig mirrors the teacher's embeddings.DefaultConfig RRF
// parameter and a conservative topK.
func DefaultConfig() Config {
	return Config{
		TopK:         10,
		Weights:      DefaultWeights(),
		Merge:        MergeWeighted,
		RRFParameter: 60,
	}
}

// VectorIndex is the subset of *embeddings.VectorIndex the Retriever needs;
// declared as an interface so tests can substitute a fake and so the
// Retriever degrades gracefully when no vector index is configured.
type VectorIndex interface {
	Search(ctx context.Context, tier, query string, limit int) ([]EmbeddingResult, error)
}

// EmbeddingResult mirrors chromem.Result's id/similarity shape without
// importing chromem-go into this package's public surface.
type EmbeddingResult struct {
	ID         string
	Similarity float64
}

// ScoredMemory is one ranked Retriever result.
type ScoredMemory struct {
	Memory        *types.Memory
	LexicalScore  float64
	VectorScore   float64
	RecencyScore  float64
	CombinedScore float64
}

// Retriever runs hybrid search over a Storage-backed memory set.
type Retriever struct {
	store    storage.Storage
	embedder embeddings.Embedder
	vectors  VectorIndex // optional; nil falls back to a linear cosine scan
	config   Config
}

// New creates a Retriever. vectors may be nil, in which case the vector
// phase falls back to a linear scan over candidate memories' own
// embeddings (matching the teacher's MockEmbedder-era fallback pattern).
func New(store storage.Storage, embedder embeddings.Embedder, vectors VectorIndex, cfg Config) *Retriever {
	return &Retriever{store: store, embedder: embedder, vectors: vectors, config: cfg}
}

// Search runs the full hybrid algorithm (spec §4.4 steps 1–5) and returns
// up to topK results ordered by CombinedScore descending. topK<=0 uses the
// Retriever's configured default.
func (r *Retriever) Search(ctx context.Context, query string, filter storage.MemoryFilter, topK int) ([]ScoredMemory, error) {
	if topK <= 0 {
		topK = r.config.TopK
	}

	lexRanks, err := r.lexicalPhase(query, filter, topK)
	if err != nil {
		return nil, err
	}

	candidates := make(map[string]*types.Memory, len(lexRanks))
	for id, m := range lexRanks {
		candidates[id] = m.memory
	}

	vecScores, err := r.vectorPhase(ctx, query, filter, candidates)
	if err != nil {
		return nil, err
	}
	// Merge by union of ids (spec §4.4 step 3): pull in vector-only
	// candidates the lexical phase never saw.
	for id, vs := range vecScores {
		if _, ok := candidates[id]; !ok {
			candidates[id] = vs.memory
		}
	}

	switch r.config.Merge {
	case MergeRRF:
		return r.mergeRRF(lexRanks, vecScores, candidates, topK), nil
	default:
		return r.mergeWeighted(lexRanks, vecScores, candidates, topK), nil
	}
}

type lexCandidate struct {
	memory *types.Memory
	rank   float64 // normalized, best = 1
}

type vecCandidate struct {
	memory     *types.Memory
	similarity float64
}

// lexicalPhase tokenizes and runs SearchLexical, taking the top 2*topK
// candidates and normalizing their position into a [0,1] rank (best=1), per
// spec §4.4 step 1. SearchLexical itself already returns results ordered
// best-first.
func (r *Retriever) lexicalPhase(query string, filter storage.MemoryFilter, topK int) (map[string]lexCandidate, error) {
	limit := 2 * topK
	results, err := r.store.SearchLexical(query, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical phase failed: %w", err)
	}

	out := make(map[string]lexCandidate, len(results))
	n := len(results)
	for i, m := range results {
		rank := 1.0
		if n > 1 {
			rank = float64(n-i) / float64(n)
		}
		out[m.ID] = lexCandidate{memory: m, rank: rank}
	}
	return out, nil
}

// vectorPhase embeds the query and scores every candidate memory that
// carries an embedding, discarding similarities below VectorSimilarityFloor
// (spec §4.4 step 2). When a VectorIndex is configured it is consulted
// first; its hits are merged with a linear scan over the remaining
// lexical-phase candidates (so a memory whose vector hasn't been indexed
// yet, but has an inline embedding, still participates).
func (r *Retriever) vectorPhase(ctx context.Context, query string, filter storage.MemoryFilter, candidates map[string]*types.Memory) (map[string]vecCandidate, error) {
	out := make(map[string]vecCandidate)
	if r.embedder == nil {
		return out, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		// Degrade silently: vector phase is best-effort (spec §4.3/§7
		// Enricher/Embedder-absence degradation idiom applies equally to
		// the Embedder here).
		return out, nil
	}

	if r.vectors != nil {
		for _, tier := range tiersInFilter(filter) {
			hits, err := r.vectors.Search(ctx, string(tier), query, 2*r.config.TopK)
			if err != nil {
				continue
			}
			for _, h := range hits {
				if h.Similarity < VectorSimilarityFloor {
					continue
				}
				m := candidates[h.ID]
				if m == nil {
					m, err = r.store.GetMemory(h.ID, types.ReadUntracked)
					if err != nil {
						continue
					}
				}
				out[h.ID] = vecCandidate{memory: m, similarity: h.Similarity}
			}
		}
	}

	for id, m := range candidates {
		if _, already := out[id]; already {
			continue
		}
		if !m.HasEmbedding() {
			continue
		}
		sim := embeddings.CosineSimilarity(queryVec, m.Embedding)
		if sim < VectorSimilarityFloor {
			continue
		}
		out[id] = vecCandidate{memory: m, similarity: sim}
	}

	return out, nil
}

// VectorIndexAdapter adapts *embeddings.VectorIndex (which returns
// chromem-go's own chromem.Result type) to the Retriever's narrower
// VectorIndex interface, keeping chromem-go out of this package's import
// graph.
type VectorIndexAdapter struct {
	Index *embeddings.VectorIndex
}

func (a *VectorIndexAdapter) Search(ctx context.Context, tier, query string, limit int) ([]EmbeddingResult, error) {
	results, err := a.Index.Search(ctx, tier, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]EmbeddingResult, len(results))
	for i, res := range results {
		out[i] = EmbeddingResult{ID: res.ID, Similarity: float64(res.Similarity)}
	}
	return out, nil
}

func tiersInFilter(filter storage.MemoryFilter) []types.Tier {
	if len(filter.Tiers) > 0 {
		return filter.Tiers
	}
	return []types.Tier{types.TierWorking, types.TierShortTerm, types.TierLongTerm, types.TierCollective}
}

// recencyScore implements spec §4.4 step 4: 0.5^(age_ms / HALF_LIFE).
func recencyScore(m *types.Memory) float64 {
	ageMS := float64(time.Since(m.CreatedAt).Milliseconds())
	halfLifeMS := float64(HalfLife.Milliseconds())
	if halfLifeMS <= 0 {
		return 0
	}
	return math.Pow(0.5, ageMS/halfLifeMS)
}

func (r *Retriever) mergeWeighted(lex map[string]lexCandidate, vec map[string]vecCandidate, all map[string]*types.Memory, topK int) []ScoredMemory {
	w := r.config.Weights
	out := make([]ScoredMemory, 0, len(all))
	for id, m := range all {
		lexScore := 0.0
		if lc, ok := lex[id]; ok {
			lexScore = lc.rank
		}
		vecScore := 0.0
		if vc, ok := vec[id]; ok {
			vecScore = vc.similarity
		}
		rec := recencyScore(m)
		combined := w.Lexical*lexScore + w.Vector*vecScore + w.Recency*rec + w.Strength*m.Strength
		out = append(out, ScoredMemory{
			Memory:        m,
			LexicalScore:  lexScore,
			VectorScore:   vecScore,
			RecencyScore:  rec,
			CombinedScore: combined,
		})
	}
	sortByCombinedDesc(out)
	return capResults(out, topK)
}

// mergeRRF combines rank positions (not scores) via 1/(k + rank), the
// teacher's RRFParameter convention.
func (r *Retriever) mergeRRF(lex map[string]lexCandidate, vec map[string]vecCandidate, all map[string]*types.Memory, topK int) []ScoredMemory {
	k := float64(r.config.RRFParameter)
	if k <= 0 {
		k = 60
	}

	lexRankByID := rankPositions(lex)
	vecRankByID := rankPositionsVec(vec)

	out := make([]ScoredMemory, 0, len(all))
	for id, m := range all {
		var rrf float64
		if pos, ok := lexRankByID[id]; ok {
			rrf += 1.0 / (k + float64(pos))
		}
		if pos, ok := vecRankByID[id]; ok {
			rrf += 1.0 / (k + float64(pos))
		}
		lexScore, vecScore := 0.0, 0.0
		if lc, ok := lex[id]; ok {
			lexScore = lc.rank
		}
		if vc, ok := vec[id]; ok {
			vecScore = vc.similarity
		}
		out = append(out, ScoredMemory{
			Memory:        m,
			LexicalScore:  lexScore,
			VectorScore:   vecScore,
			RecencyScore:  recencyScore(m),
			CombinedScore: rrf,
		})
	}
	sortByCombinedDesc(out)
	return capResults(out, topK)
}

func rankPositions(lex map[string]lexCandidate) map[string]int {
	ids := make([]string, 0, len(lex))
	for id := range lex {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lex[ids[i]].rank > lex[ids[j]].rank })
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = i + 1
	}
	return out
}

func rankPositionsVec(vec map[string]vecCandidate) map[string]int {
	ids := make([]string, 0, len(vec))
	for id := range vec {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return vec[ids[i]].similarity > vec[ids[j]].similarity })
	out := make(map[string]int, len(ids))
	for i, id := range ids {
		out[id] = i + 1
	}
	return out
}

func sortByCombinedDesc(scored []ScoredMemory) {
	sort.Slice(scored, func(i, j int) bool { return scored[i].CombinedScore > scored[j].CombinedScore })
}

func capResults(scored []ScoredMemory, topK int) []ScoredMemory {
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
