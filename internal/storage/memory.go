// Package storage provides the persistence layer for memories, patterns,
// dialectic nodes, artifacts and sessions.
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"engram/internal/types"
)

// MemoryStorage is an in-process, in-memory implementation of Storage. It
// backs tests and small deployments, and doubles as the SQLiteStorage's
// write-through read cache (mirroring the teacher's SQLiteStorage.cache
// field).
type MemoryStorage struct {
	mu sync.RWMutex

	memories       map[string]*types.Memory
	patterns       map[string]*types.Pattern
	theses         map[string]*types.Thesis
	antitheses     map[string]*types.Antithesis
	syntheses      map[string]*types.Synthesis
	cycles         map[string]*types.DialecticCycle
	rules          map[string]*types.Rule  // keyed by slug
	skills         map[string]*types.Skill // keyed by name
	sessions       map[string]*types.Session
	embeddingCache map[string][]float32 // key = hash+"|"+modelID

	assoc *AssociationIndex
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		memories:       make(map[string]*types.Memory),
		patterns:       make(map[string]*types.Pattern),
		theses:         make(map[string]*types.Thesis),
		antitheses:     make(map[string]*types.Antithesis),
		syntheses:      make(map[string]*types.Synthesis),
		cycles:         make(map[string]*types.DialecticCycle),
		rules:          make(map[string]*types.Rule),
		skills:         make(map[string]*types.Skill),
		sessions:       make(map[string]*types.Session),
		embeddingCache: make(map[string][]float32),
		assoc:          NewAssociationIndex(),
	}
}

// Associations exposes the derived DAG view over memory/pattern/thesis/
// antithesis/synthesis/cycle/rule/skill relations (spec §9 Design Notes).
// The relational maps above remain authoritative; this index is rebuilt
// incrementally as entities are stored and is safe to query concurrently.
func (s *MemoryStorage) Associations() *AssociationIndex {
	return s.assoc
}

// --- MemoryRepository ---

func (s *MemoryStorage) StoreMemory(m *types.Memory) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: memory id is required", ErrStoreIO)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.ID] = copyMemory(m)
	for _, other := range m.Metadata.Associations {
		_ = s.assoc.LinkMemoryAssociation(m.ID, other)
	}
	return nil
}

func (s *MemoryStorage) GetMemory(id string, mode types.ReadMode) (*types.Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if mode == types.ReadTracked {
		m.AccessCount++
		m.LastAccessed = time.Now()
	}
	return copyMemory(m), nil
}

func (s *MemoryStorage) UpdateMemory(m *types.Memory) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: memory id is required", ErrStoreIO)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[m.ID]; !ok {
		return fmt.Errorf("memory %s: %w", m.ID, ErrNotFound)
	}
	m.UpdatedAt = time.Now()
	s.memories[m.ID] = copyMemory(m)
	return nil
}

func (s *MemoryStorage) DeleteMemory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, id)
	return nil
}

func (s *MemoryStorage) ListMemoriesWithoutEmbedding(limit int) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Memory
	for _, m := range s.memories {
		if m.HasEmbedding() {
			continue
		}
		out = append(out, copyMemory(m))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStorage) UpdateMemoryEmbedding(id string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	m.Embedding = embedding
	m.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) QueryMemories(filter MemoryFilter) ([]*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Memory
	for _, m := range s.memories {
		if matchesFilter(m, filter) {
			out = append(out, copyMemory(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(m *types.Memory, f MemoryFilter) bool {
	if len(f.Tiers) > 0 {
		found := false
		for _, t := range f.Tiers {
			if m.Tier == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SessionID != "" && m.Metadata.SessionID != f.SessionID {
		return false
	}
	if f.Source != "" && m.Metadata.Source != f.Source {
		return false
	}
	if f.Stage != "" && m.Metadata.Stage != f.Stage {
		return false
	}
	if m.Strength < f.MinStrength {
		return false
	}
	if m.Metadata.Confidence < f.MinConfidence {
		return false
	}
	for _, tag := range f.Tags {
		if !containsString(m.Metadata.Tags, tag) {
			return false
		}
	}
	if f.SemanticKey != "" {
		matched := false
		for _, sk := range m.Metadata.SemanticKeys {
			if sk.Key != f.SemanticKey {
				continue
			}
			if f.SemanticValue == "" || sk.Value == f.SemanticValue {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// SearchLexical performs a simple ranked keyword search over content, tool
// name, tags and semantic-key values, with prefix matching on tokens. It
// mirrors the FTS5 behaviour of SQLiteStorage closely enough that swapping
// backends doesn't change Retriever semantics (see sqlite_schema.go).
func (s *MemoryStorage) SearchLexical(query string, filter MemoryFilter, limit int) ([]*types.Memory, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		m     *types.Memory
		score float64
	}
	var scoredList []scored
	for _, m := range s.memories {
		if !matchesFilter(m, filter) {
			continue
		}
		haystack := lexicalHaystack(m)
		score := scoreTerms(terms, haystack)
		if score > 0 {
			scoredList = append(scoredList, scored{m: copyMemory(m), score: score})
		}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].score > scoredList[j].score })

	out := make([]*types.Memory, 0, len(scoredList))
	for _, sc := range scoredList {
		out = append(out, sc.m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func lexicalHaystack(m *types.Memory) []string {
	tokens := tokenize(m.Content)
	tokens = append(tokens, tokenize(m.Metadata.ToolName)...)
	for _, tag := range m.Metadata.Tags {
		tokens = append(tokens, tokenize(tag)...)
	}
	for _, sk := range m.Metadata.SemanticKeys {
		tokens = append(tokens, tokenize(sk.Value)...)
	}
	return tokens
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// scoreTerms computes a phrase-OR-prefix score: each haystack token that
// exactly matches or prefix-matches a query term contributes.
func scoreTerms(terms, haystack []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	var hits float64
	for _, term := range terms {
		for _, tok := range haystack {
			if tok == term {
				hits += 1.0
				break
			}
			if strings.HasPrefix(tok, term) {
				hits += 0.5
				break
			}
		}
	}
	return hits / float64(len(terms))
}

// --- PatternRepository ---

func (s *MemoryStorage) StorePattern(p *types.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.ID] = copyPattern(p)
	for _, mid := range p.MemoryIDs {
		_ = s.assoc.LinkMemoryToPattern(mid, p.ID)
	}
	return nil
}

func (s *MemoryStorage) GetPattern(id string) (*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return copyPattern(p), nil
}

func (s *MemoryStorage) ListPatterns() ([]*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, copyPattern(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStorage) UpdatePattern(p *types.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[p.ID]; !ok {
		return fmt.Errorf("pattern %s: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = time.Now()
	s.patterns[p.ID] = copyPattern(p)
	return nil
}

// --- ThesisRepository ---

func (s *MemoryStorage) StoreThesis(t *types.Thesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theses[t.ID] = copyThesis(t)
	_ = s.assoc.LinkPatternToThesis(t.PatternID, t.ID)
	return nil
}

func (s *MemoryStorage) GetThesis(id string) (*types.Thesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.theses[id]
	if !ok {
		return nil, fmt.Errorf("thesis %s: %w", id, ErrNotFound)
	}
	return copyThesis(t), nil
}

func (s *MemoryStorage) GetActiveThesisForPattern(patternID string) (*types.Thesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.theses {
		if t.PatternID == patternID && t.Status == types.ThesisActive {
			return copyThesis(t), nil
		}
	}
	return nil, fmt.Errorf("active thesis for pattern %s: %w", patternID, ErrNotFound)
}

func (s *MemoryStorage) UpdateThesis(t *types.Thesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.theses[t.ID]; !ok {
		return fmt.Errorf("thesis %s: %w", t.ID, ErrNotFound)
	}
	t.UpdatedAt = time.Now()
	s.theses[t.ID] = copyThesis(t)
	return nil
}

// --- AntithesisRepository ---

func (s *MemoryStorage) StoreAntithesis(a *types.Antithesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.antitheses[a.ID] = copyAntithesis(a)
	_ = s.assoc.LinkThesisToAntithesis(a.ThesisID, a.ID)
	return nil
}

func (s *MemoryStorage) ListAntithesesForThesis(thesisID string) ([]*types.Antithesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Antithesis
	for _, a := range s.antitheses {
		if a.ThesisID == thesisID {
			out = append(out, copyAntithesis(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- SynthesisRepository ---

func (s *MemoryStorage) StoreSynthesis(syn *types.Synthesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syntheses[syn.ID] = copySynthesis(syn)
	_ = s.assoc.LinkToSynthesis(syn.ThesisID, syn.AntithesisIDs, syn.ID)
	return nil
}

func (s *MemoryStorage) GetSynthesis(id string) (*types.Synthesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	syn, ok := s.syntheses[id]
	if !ok {
		return nil, fmt.Errorf("synthesis %s: %w", id, ErrNotFound)
	}
	return copySynthesis(syn), nil
}

// --- CycleRepository ---

func (s *MemoryStorage) StoreCycle(c *types.DialecticCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles[c.ID] = copyCycle(c)
	return nil
}

func (s *MemoryStorage) GetCycle(id string) (*types.DialecticCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cycles[id]
	if !ok {
		return nil, fmt.Errorf("cycle %s: %w", id, ErrNotFound)
	}
	return copyCycle(c), nil
}

func (s *MemoryStorage) GetActiveCycleForPattern(patternID string) (*types.DialecticCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.cycles {
		if c.PatternID == patternID && c.Status == types.CycleActive {
			return copyCycle(c), nil
		}
	}
	return nil, fmt.Errorf("active cycle for pattern %s: %w", patternID, ErrNotFound)
}

func (s *MemoryStorage) UpdateCycle(c *types.DialecticCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cycles[c.ID]; !ok {
		return fmt.Errorf("cycle %s: %w", c.ID, ErrNotFound)
	}
	c.UpdatedAt = time.Now()
	s.cycles[c.ID] = copyCycle(c)
	return nil
}

// ResolveCycleWithSynthesis is the one operation spec §4.1 requires to be
// atomic: it stores the synthesis, resolves the cycle, and marks the
// thesis synthesized as a single critical section.
func (s *MemoryStorage) ResolveCycleWithSynthesis(cycle *types.DialecticCycle, synthesis *types.Synthesis, thesis *types.Thesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cycle.Status = types.CycleResolved
	cycle.SynthesisID = synthesis.ID
	cycle.UpdatedAt = now
	thesis.Status = types.ThesisSynthesized
	thesis.UpdatedAt = now

	s.syntheses[synthesis.ID] = copySynthesis(synthesis)
	s.cycles[cycle.ID] = copyCycle(cycle)
	s.theses[thesis.ID] = copyThesis(thesis)
	_ = s.assoc.LinkToSynthesis(synthesis.ThesisID, synthesis.AntithesisIDs, synthesis.ID)
	_ = s.assoc.LinkSynthesisToCycle(synthesis.ID, cycle.ID)
	return nil
}

// --- ArtifactRepository ---

func (s *MemoryStorage) StoreRule(r *types.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.Slug] = copyRule(r)
	if r.SynthesisID != "" {
		_ = s.assoc.LinkSynthesisToRule(r.SynthesisID, r.ID)
	}
	return nil
}

func (s *MemoryStorage) GetRuleBySlug(slug string) (*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[slug]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", slug, ErrNotFound)
	}
	return copyRule(r), nil
}

func (s *MemoryStorage) ListRules() ([]*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, copyRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStorage) StoreSkill(sk *types.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills[sk.Name] = copySkill(sk)
	if sk.SynthesisID != "" {
		_ = s.assoc.LinkSynthesisToSkill(sk.SynthesisID, sk.ID)
	}
	return nil
}

func (s *MemoryStorage) GetSkillByName(name string) (*types.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.skills[name]
	if !ok {
		return nil, fmt.Errorf("skill %s: %w", name, ErrNotFound)
	}
	return copySkill(sk), nil
}

func (s *MemoryStorage) ListSkills() ([]*types.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		out = append(out, copySkill(sk))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- SessionRepository ---

func (s *MemoryStorage) StoreSession(sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetSession(id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStorage) UpdateSession(sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %s: %w", sess.ID, ErrNotFound)
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// --- EmbeddingCacheRepository ---

func (s *MemoryStorage) GetCachedEmbedding(hash, modelID string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.embeddingCache[hash+"|"+modelID]
	return vec, ok
}

func (s *MemoryStorage) PutCachedEmbedding(hash, modelID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingCache[hash+"|"+modelID] = vec
	return nil
}

// --- deep copy helpers, mirroring the teacher's copy.go idiom ---

func copyMemory(m *types.Memory) *types.Memory {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Embedding = append([]float32(nil), m.Embedding...)
	cp.Metadata = m.Metadata
	if m.Metadata.ToolInput != nil {
		cp.Metadata.ToolInput = make(map[string]any, len(m.Metadata.ToolInput))
		for k, v := range m.Metadata.ToolInput {
			cp.Metadata.ToolInput[k] = v
		}
	}
	cp.Metadata.Tags = append([]string(nil), m.Metadata.Tags...)
	cp.Metadata.Associations = append([]string(nil), m.Metadata.Associations...)
	cp.Metadata.SemanticKeys = append([]types.SemanticKey(nil), m.Metadata.SemanticKeys...)
	return &cp
}

func copyPattern(p *types.Pattern) *types.Pattern {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Embedding = append([]float32(nil), p.Embedding...)
	cp.MemoryIDs = append([]string(nil), p.MemoryIDs...)
	return &cp
}

func copyThesis(t *types.Thesis) *types.Thesis {
	if t == nil {
		return nil
	}
	cp := *t
	cp.ExemplarMemoryIDs = append([]string(nil), t.ExemplarMemoryIDs...)
	return &cp
}

func copyAntithesis(a *types.Antithesis) *types.Antithesis {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ExemplarMemoryIDs = append([]string(nil), a.ExemplarMemoryIDs...)
	return &cp
}

func copySynthesis(syn *types.Synthesis) *types.Synthesis {
	if syn == nil {
		return nil
	}
	cp := *syn
	cp.AntithesisIDs = append([]string(nil), syn.AntithesisIDs...)
	cp.ExemplarMemoryIDs = append([]string(nil), syn.ExemplarMemoryIDs...)
	cp.ToolDataSnapshot = append([]types.ToolDataEntry(nil), syn.ToolDataSnapshot...)
	cp.Resolution.Conditions = append([]string(nil), syn.Resolution.Conditions...)
	return &cp
}

func copyCycle(c *types.DialecticCycle) *types.DialecticCycle {
	if c == nil {
		return nil
	}
	cp := *c
	cp.AntithesisIDs = append([]string(nil), c.AntithesisIDs...)
	return &cp
}

func copyRule(r *types.Rule) *types.Rule {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Paths = append([]string(nil), r.Paths...)
	return &cp
}

func copySkill(sk *types.Skill) *types.Skill {
	if sk == nil {
		return nil
	}
	cp := *sk
	cp.WhenToUse = append([]string(nil), sk.WhenToUse...)
	cp.EdgeCases = append([]string(nil), sk.EdgeCases...)
	return &cp
}
