package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/types"
)

func newTestSQLiteStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "engram.db")
	s, err := NewSQLiteStorage(dbPath, 5000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStorage_StoreAndGetMemory(t *testing.T) {
	s := newTestSQLiteStorage(t)
	m := types.NewMemory("session-1", types.SourceToolUse)
	m.Content = "ran go vet ./..."
	m.Metadata.Tags = []string{"go", "vet"}
	m.Metadata.SemanticKeys = []types.SemanticKey{{Key: "tool", Value: "go", Weight: 1}}

	require.NoError(t, s.StoreMemory(m))

	got, err := s.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.ElementsMatch(t, []string{"go", "vet"}, got.Metadata.Tags)
}

func TestSQLiteStorage_SearchLexical_UsesFTS(t *testing.T) {
	s := newTestSQLiteStorage(t)
	m1 := types.NewMemory("s1", types.SourceToolUse)
	m1.Content = "refactored the retry middleware"
	m2 := types.NewMemory("s1", types.SourceToolUse)
	m2.Content = "unrelated logging change"
	require.NoError(t, s.StoreMemory(m1))
	require.NoError(t, s.StoreMemory(m2))

	out, err := s.SearchLexical("retry", MemoryFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, m1.ID, out[0].ID)
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "engram.db")

	s1, err := NewSQLiteStorage(dbPath, 5000)
	require.NoError(t, err)
	m := types.NewMemory("session-1", types.SourceToolUse)
	m.Content = "persisted memory"
	require.NoError(t, s1.StoreMemory(m))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStorage(dbPath, 5000)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, "persisted memory", got.Content)
}

func TestSQLiteStorage_ResolveCycleWithSynthesis(t *testing.T) {
	s := newTestSQLiteStorage(t)

	pattern := types.NewPattern("idempotent-retry", "retry safety pattern")
	require.NoError(t, s.StorePattern(pattern))
	thesis := types.NewThesis(pattern.ID, "retry every failed call")
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

	gotThesis, err := s.GetThesis(thesis.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ThesisSynthesized, gotThesis.Status)
}

func TestSQLiteStorage_EmbeddingCachePersists(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "engram.db")
	s1, err := NewSQLiteStorage(dbPath, 5000)
	require.NoError(t, err)
	vec := []float32{0.25, -0.5, 1.0}
	require.NoError(t, s1.PutCachedEmbedding("hash1", "model-a", vec))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStorage(dbPath, 5000)
	require.NoError(t, err)
	defer s2.Close()

	got, ok := s2.GetCachedEmbedding("hash1", "model-a")
	require.True(t, ok)
	assert.InDeltaSlice(t, vec, got, 0.0001)
}
