package dialectic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"engram/internal/dialectic"
	"engram/internal/storage"
	"engram/internal/types"
)

func vec(lead float32) []float32 {
	v := make([]float32, 8)
	v[0] = lead
	for i := 1; i < len(v); i++ {
		v[i] = 0.1
	}
	return v
}

func newMemory(content, toolName string, tags []string, embedding []float32) *types.Memory {
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Content = content
	m.Metadata.ToolName = toolName
	m.Metadata.Tags = tags
	m.Embedding = embedding
	m.Metadata.Stage = types.StageSemantic
	return m
}

func TestProcessMemory_FoundsNewPatternFromSimilarGroup(t *testing.T) {
	store := storage.NewMemoryStorage()
	eng := dialectic.New(store, nil, nil, nil, dialectic.DefaultConfig())
	ctx := context.Background()

	seedA := newMemory("ran go test before commit", "Bash", nil, vec(1.0))
	seedB := newMemory("ran go test before commit again", "Bash", nil, vec(1.0))
	require.NoError(t, store.StoreMemory(seedA))
	require.NoError(t, store.StoreMemory(seedB))

	triggering := newMemory("ran go test before commit once more", "Bash", nil, vec(1.0))
	outcome, err := eng.ProcessMemory(ctx, triggering)
	require.NoError(t, err)
	require.True(t, outcome.Matched)
	require.True(t, outcome.PatternCreated)

	patterns, err := store.ListPatterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	require.Contains(t, patterns[0].MemoryIDs, triggering.ID)
}

func TestProcessMemory_NoPatternWithoutEnoughSimilarMembers(t *testing.T) {
	store := storage.NewMemoryStorage()
	eng := dialectic.New(store, nil, nil, nil, dialectic.DefaultConfig())
	ctx := context.Background()

	only := newMemory("a one-off observation", "Read", nil, vec(1.0))
	outcome, err := eng.ProcessMemory(ctx, only)
	require.NoError(t, err)
	require.False(t, outcome.Matched)

	patterns, err := store.ListPatterns()
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestProcessMemory_DirectContradictionTriggersSynthesis(t *testing.T) {
	store := storage.NewMemoryStorage()
	cfg := dialectic.DefaultConfig()
	cfg.MinAntitheses = 1
	eng := dialectic.New(store, nil, nil, nil, cfg)
	ctx := context.Background()

	seedA := newMemory("ran npm install successfully", "Bash", nil, vec(1.0))
	seedB := newMemory("ran npm install successfully again", "Bash", nil, vec(1.0))
	require.NoError(t, store.StoreMemory(seedA))
	require.NoError(t, store.StoreMemory(seedB))

	third := newMemory("ran npm install a third time", "Bash", nil, vec(1.0))
	_, err := eng.ProcessMemory(ctx, third)
	require.NoError(t, err)

	patterns, err := store.ListPatterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	pattern := patterns[0]

	contradicting := newMemory("npm install failed with EACCES", "Bash", []string{"error"}, vec(1.0))
	outcome, err := eng.ProcessMemory(ctx, contradicting)
	require.NoError(t, err)
	require.NotNil(t, outcome.AntithesisAdded)
	require.Equal(t, types.ContradictionDirect, outcome.AntithesisAdded.ContradictionType)
	require.NotNil(t, outcome.Synthesis)
	require.Equal(t, types.ResolutionRejection, outcome.Synthesis.Resolution.Type)
	require.NotNil(t, outcome.Synthesis.Resolution.OutputDecision)

	refreshedPattern, err := store.GetPattern(pattern.ID)
	require.NoError(t, err)
	require.Equal(t, types.PhaseSynthesis, refreshedPattern.DialecticPhase)
}

func TestProcessMemory_NoContradictionCorroboratesThesis(t *testing.T) {
	store := storage.NewMemoryStorage()
	eng := dialectic.New(store, nil, nil, nil, dialectic.DefaultConfig())
	ctx := context.Background()

	seedA := newMemory("linted the project cleanly", "Bash", nil, vec(1.0))
	seedB := newMemory("linted the project cleanly again", "Bash", nil, vec(1.0))
	require.NoError(t, store.StoreMemory(seedA))
	require.NoError(t, store.StoreMemory(seedB))

	third := newMemory("linted the project cleanly a third time", "Bash", nil, vec(1.0))
	_, err := eng.ProcessMemory(ctx, third)
	require.NoError(t, err)

	corroborating := newMemory("linted the project cleanly yet again", "Bash", nil, vec(1.0))
	outcome, err := eng.ProcessMemory(ctx, corroborating)
	require.NoError(t, err)
	require.Nil(t, outcome.AntithesisAdded)
	require.Nil(t, outcome.Synthesis)
}
