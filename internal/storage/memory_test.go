package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/types"
)

func TestMemoryStorage_StoreAndGetMemory(t *testing.T) {
	s := NewMemoryStorage()
	m := types.NewMemory("session-1", types.SourceToolUse)
	m.Content = "ran go test ./..."

	require.NoError(t, s.StoreMemory(m))

	got, err := s.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, 0, got.AccessCount)
}

func TestMemoryStorage_GetMemory_TrackedBumpsAccess(t *testing.T) {
	s := NewMemoryStorage()
	m := types.NewMemory("session-1", types.SourceToolUse)
	require.NoError(t, s.StoreMemory(m))

	first, err := s.GetMemory(m.ID, types.ReadTracked)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AccessCount)

	second, err := s.GetMemory(m.ID, types.ReadTracked)
	require.NoError(t, err)
	assert.Equal(t, 2, second.AccessCount)

	untracked, err := s.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, 2, untracked.AccessCount)
}

func TestMemoryStorage_GetMemory_NotFound(t *testing.T) {
	s := NewMemoryStorage()
	_, err := s.GetMemory("missing", types.ReadUntracked)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStorage_CopyOnReadPreventsMutation(t *testing.T) {
	s := NewMemoryStorage()
	m := types.NewMemory("session-1", types.SourceToolUse)
	m.Metadata.Tags = []string{"shell"}
	require.NoError(t, s.StoreMemory(m))

	got, err := s.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	got.Metadata.Tags[0] = "mutated"

	again, err := s.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, "shell", again.Metadata.Tags[0])
}

func TestMemoryStorage_QueryMemories_FiltersByTierAndTag(t *testing.T) {
	s := NewMemoryStorage()
	m1 := types.NewMemory("s1", types.SourceToolUse)
	m1.Tier = types.TierWorking
	m1.Metadata.Tags = []string{"shell"}
	m2 := types.NewMemory("s1", types.SourceToolUse)
	m2.Tier = types.TierLongTerm
	m2.Metadata.Tags = []string{"edit"}
	require.NoError(t, s.StoreMemory(m1))
	require.NoError(t, s.StoreMemory(m2))

	out, err := s.QueryMemories(MemoryFilter{Tiers: []types.Tier{types.TierWorking}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, m1.ID, out[0].ID)

	out, err = s.QueryMemories(MemoryFilter{Tags: []string{"edit"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, m2.ID, out[0].ID)
}

func TestMemoryStorage_SearchLexical_RanksPrefixMatches(t *testing.T) {
	s := NewMemoryStorage()
	m1 := types.NewMemory("s1", types.SourceToolUse)
	m1.Content = "edited the authentication middleware"
	m2 := types.NewMemory("s1", types.SourceToolUse)
	m2.Content = "unrelated shell command"
	require.NoError(t, s.StoreMemory(m1))
	require.NoError(t, s.StoreMemory(m2))

	out, err := s.SearchLexical("auth", MemoryFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, m1.ID, out[0].ID)
}

func TestMemoryStorage_ResolveCycleWithSynthesis_IsAtomic(t *testing.T) {
	s := NewMemoryStorage()
	pattern := types.NewPattern("retry-on-timeout", "retries network calls on timeout")
	require.NoError(t, s.StorePattern(pattern))

	thesis := types.NewThesis(pattern.ID, "always retry once")
	require.NoError(t, s.StoreThesis(thesis))

	cycle := types.NewDialecticCycle(pattern.ID, thesis.ID)
	require.NoError(t, s.StoreCycle(cycle))

	synthesis := types.NewSynthesis(thesis.ID, nil, "retry only idempotent calls", types.Resolution{
		Type: types.ResolutionConditional,
	})

	require.NoError(t, s.ResolveCycleWithSynthesis(cycle, synthesis, thesis))

	gotCycle, err := s.GetCycle(cycle.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CycleResolved, gotCycle.Status)
	assert.Equal(t, synthesis.ID, gotCycle.SynthesisID)

	gotThesis, err := s.GetThesis(thesis.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ThesisSynthesized, gotThesis.Status)
}

func TestMemoryStorage_EmbeddingCache(t *testing.T) {
	s := NewMemoryStorage()
	_, ok := s.GetCachedEmbedding("abc", "model-1")
	assert.False(t, ok)

	vec := []float32{0.1, 0.2, 0.3}
	require.NoError(t, s.PutCachedEmbedding("abc", "model-1", vec))

	got, ok := s.GetCachedEmbedding("abc", "model-1")
	require.True(t, ok)
	assert.Equal(t, vec, got)
}
