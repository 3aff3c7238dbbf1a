package storage

import "engram/internal/types"

// MemoryFilter narrows a memory query across tier, session, source, stage,
// strength/confidence floors, tag membership and semantic-key facts.
type MemoryFilter struct {
	Tiers         []types.Tier
	SessionID     string
	Source        types.Source
	Stage         types.Stage
	MinStrength   float64
	MinConfidence float64
	Tags          []string
	SemanticKey   string // key name; empty = no filter
	SemanticValue string // value; empty means "key present, any value"
	Limit         int
}

// MemoryRepository manages memory persistence and retrieval.
type MemoryRepository interface {
	StoreMemory(m *types.Memory) error
	// GetMemory fetches a memory by id. ReadTracked bumps AccessCount and
	// LastAccessed as a side effect; ReadUntracked does not.
	GetMemory(id string, mode types.ReadMode) (*types.Memory, error)
	UpdateMemory(m *types.Memory) error
	DeleteMemory(id string) error
	QueryMemories(filter MemoryFilter) ([]*types.Memory, error)
	SearchLexical(query string, filter MemoryFilter, limit int) ([]*types.Memory, error)
	// ListMemoriesWithoutEmbedding returns up to limit memories that have no
	// embedding yet, for embeddings.BackfillRunner to process.
	ListMemoriesWithoutEmbedding(limit int) ([]*types.Memory, error)
	// UpdateMemoryEmbedding sets a memory's embedding vector in place.
	UpdateMemoryEmbedding(id string, embedding []float32) error
}

// PatternRepository manages patterns.
type PatternRepository interface {
	StorePattern(p *types.Pattern) error
	GetPattern(id string) (*types.Pattern, error)
	ListPatterns() ([]*types.Pattern, error)
	UpdatePattern(p *types.Pattern) error
}

// ThesisRepository manages theses.
type ThesisRepository interface {
	StoreThesis(t *types.Thesis) error
	GetThesis(id string) (*types.Thesis, error)
	GetActiveThesisForPattern(patternID string) (*types.Thesis, error)
	UpdateThesis(t *types.Thesis) error
}

// AntithesisRepository manages antitheses.
type AntithesisRepository interface {
	StoreAntithesis(a *types.Antithesis) error
	ListAntithesesForThesis(thesisID string) ([]*types.Antithesis, error)
}

// SynthesisRepository manages syntheses.
type SynthesisRepository interface {
	StoreSynthesis(s *types.Synthesis) error
	GetSynthesis(id string) (*types.Synthesis, error)
}

// CycleRepository manages dialectic cycles.
type CycleRepository interface {
	StoreCycle(c *types.DialecticCycle) error
	GetCycle(id string) (*types.DialecticCycle, error)
	GetActiveCycleForPattern(patternID string) (*types.DialecticCycle, error)
	UpdateCycle(c *types.DialecticCycle) error
	// ResolveCycleWithSynthesis atomically stores the synthesis, marks the
	// cycle resolved, and marks the thesis synthesized. See spec §4.1.
	ResolveCycleWithSynthesis(cycle *types.DialecticCycle, synthesis *types.Synthesis, thesis *types.Thesis) error
}

// ArtifactRepository manages rule and skill artifacts.
type ArtifactRepository interface {
	StoreRule(r *types.Rule) error
	GetRuleBySlug(slug string) (*types.Rule, error)
	ListRules() ([]*types.Rule, error)
	StoreSkill(s *types.Skill) error
	GetSkillByName(name string) (*types.Skill, error)
	ListSkills() ([]*types.Skill, error)
}

// SessionRepository manages sessions.
type SessionRepository interface {
	StoreSession(s *types.Session) error
	GetSession(id string) (*types.Session, error)
	UpdateSession(s *types.Session) error
}

// EmbeddingCacheRepository is the content-addressed embedding cache.
type EmbeddingCacheRepository interface {
	GetCachedEmbedding(hash, modelID string) ([]float32, bool)
	PutCachedEmbedding(hash, modelID string, vec []float32) error
}

// Storage combines every repository interface for unified access. All
// components depend on this interface, never on a concrete backend.
type Storage interface {
	MemoryRepository
	PatternRepository
	ThesisRepository
	AntithesisRepository
	SynthesisRepository
	CycleRepository
	ArtifactRepository
	SessionRepository
	EmbeddingCacheRepository
}

// Verify MemoryStorage and SQLiteStorage implement Storage interface.
var _ Storage = (*MemoryStorage)(nil)
var _ Storage = (*SQLiteStorage)(nil)
