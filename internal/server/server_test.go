package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"engram/internal/storage"
	"engram/internal/types"
)

func TestHandleSearchMemories(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Content = "ran the deploy script"
	require.NoError(t, store.StoreMemory(m))

	srv := New(store, nil)
	_, resp, err := srv.handleSearchMemories(context.Background(), nil, SearchMemoriesRequest{Query: "deploy"})
	require.NoError(t, err)
	require.Len(t, resp.Memories, 1)
	require.Equal(t, m.ID, resp.Memories[0].ID)
}

func TestHandleGetPatternNotFound(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := New(store, nil)
	_, _, err := srv.handleGetPattern(context.Background(), nil, GetPatternRequest{ID: "missing"})
	require.Error(t, err)
}

func TestHandleGetSynthesisRoundTrip(t *testing.T) {
	store := storage.NewMemoryStorage()
	thesis := types.NewThesis("pattern-1", "thesis content")
	require.NoError(t, store.StoreThesis(thesis))
	synthesis := types.NewSynthesis(thesis.ID, nil, "reconciled content", types.Resolution{Type: types.ResolutionIntegration})
	require.NoError(t, store.StoreSynthesis(synthesis))

	srv := New(store, nil)
	_, resp, err := srv.handleGetSynthesis(context.Background(), nil, GetSynthesisRequest{ID: synthesis.ID})
	require.NoError(t, err)
	require.Equal(t, "reconciled content", resp.Synthesis.Content)
}

func TestHandleListRulesAndSkills(t *testing.T) {
	store := storage.NewMemoryStorage()
	srv := New(store, nil)

	rulesResp, _, err := srv.handleListRules(context.Background(), nil, EmptyRequest{})
	require.NoError(t, err)
	require.Empty(t, rulesResp.Rules)

	skillsResp, _, err := srv.handleListSkills(context.Background(), nil, EmptyRequest{})
	require.NoError(t, err)
	require.Empty(t, skillsResp.Skills)
}

func TestHandleGetMetricsCountsEntitiesAcrossTiers(t *testing.T) {
	store := storage.NewMemoryStorage()
	working := types.NewMemory("s1", types.SourceToolUse)
	require.NoError(t, store.StoreMemory(working))

	longTerm := types.NewMemory("s1", types.SourceToolUse)
	longTerm.Tier = types.TierLongTerm
	require.NoError(t, store.StoreMemory(longTerm))

	pattern := types.NewPattern("p", "d")
	require.NoError(t, store.StorePattern(pattern))

	srv := New(store, nil)
	_, resp, err := srv.handleGetMetrics(context.Background(), nil, EmptyRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, resp.MemoriesByTier["working"])
	require.Equal(t, 1, resp.MemoriesByTier["long_term"])
	require.Equal(t, 1, resp.PatternCount)
}
