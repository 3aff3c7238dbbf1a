package consolidator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/consolidator"
	"engram/internal/storage"
	"engram/internal/types"
)

func newWorkingMemory(t *testing.T, store *storage.MemoryStorage, sessionID string, accessCount int, strength float64) *types.Memory {
	t.Helper()
	m := types.NewMemory(sessionID, types.SourceToolUse)
	m.AccessCount = accessCount
	m.Strength = strength
	require.NoError(t, store.StoreMemory(m))
	return m
}

func TestPromoteWorking_PromotesOnAccessCount(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := newWorkingMemory(t, store, "s1", 2, 0.1)

	c := consolidator.New(store, consolidator.DefaultThresholds())
	report, err := c.ConsolidateSession("s1")
	require.NoError(t, err)
	require.Equal(t, 1, report.PromotedToShortTerm)

	got, err := store.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, types.TierShortTerm, got.Tier)
}

func TestPromoteWorking_PromotesOnStrength(t *testing.T) {
	store := storage.NewMemoryStorage()
	newWorkingMemory(t, store, "s1", 0, 0.6)

	c := consolidator.New(store, consolidator.DefaultThresholds())
	report, err := c.ConsolidateSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.PromotedToShortTerm, "expected promotion on strength")
}

func TestPromoteWorking_DeletesWeakMemory(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := newWorkingMemory(t, store, "s1", 0, 0.1)

	c := consolidator.New(store, consolidator.DefaultThresholds())
	report, err := c.ConsolidateSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.PrunedWorking)

	_, err = store.GetMemory(m.ID, types.ReadUntracked)
	assert.Error(t, err, "expected deleted memory to be gone")
}

func TestPromoteShortTerm_RequiresAllThreeCriteria(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Tier = types.TierShortTerm
	m.AccessCount = 10
	m.Strength = 0.9
	m.CreatedAt = time.Now().Add(-48 * time.Hour)
	m.UpdatedAt = m.CreatedAt
	require.NoError(t, store.StoreMemory(m))

	c := consolidator.New(store, consolidator.DefaultThresholds())
	report, err := c.ConsolidateSession("s1")
	require.NoError(t, err)
	require.Equal(t, 1, report.PromotedToLongTerm)

	got, err := store.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err)
	assert.Equal(t, types.TierLongTerm, got.Tier)
}

func TestPromoteShortTerm_TooYoungDoesNotPromote(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Tier = types.TierShortTerm
	m.AccessCount = 10
	m.Strength = 0.9
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	require.NoError(t, store.StoreMemory(m))

	c := consolidator.New(store, consolidator.DefaultThresholds())
	report, err := c.ConsolidateSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.PromotedToLongTerm, "expected no long_term promotion for a fresh memory")
}

func TestDecayShortTerm_PrunesBelowFloor(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Tier = types.TierShortTerm
	m.Strength = 0.02
	m.DecayFactor = 1.0
	m.UpdatedAt = time.Now().Add(-100 * time.Hour) // long past HALF_LIFE
	require.NoError(t, store.StoreMemory(m))

	c := consolidator.New(store, consolidator.DefaultThresholds())
	report, err := c.ConsolidateSession("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.PrunedShortTerm, "expected decay to prune the memory")
}

func TestLongTermNeverDecaysOrDemotes(t *testing.T) {
	store := storage.NewMemoryStorage()
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Tier = types.TierLongTerm
	m.Strength = 0.0001
	require.NoError(t, store.StoreMemory(m))

	c := consolidator.New(store, consolidator.DefaultThresholds())
	_, err := c.ConsolidateSession("s1")
	require.NoError(t, err)

	got, err := store.GetMemory(m.ID, types.ReadUntracked)
	require.NoError(t, err, "expected long_term memory to survive consolidation")
	assert.Equal(t, types.TierLongTerm, got.Tier)
	assert.Equal(t, 0.0001, got.Strength, "expected long_term strength untouched")
}
