package rulewriter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"engram/internal/rulewriter"
	"engram/internal/storage"
	"engram/internal/types"
)

func seedSynthesis(t *testing.T, store *storage.MemoryStorage) (*types.Pattern, *types.Synthesis) {
	t.Helper()
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Metadata.ToolName = "Bash"
	m.Metadata.SemanticKeys = []types.SemanticKey{
		{Key: "directory", Value: "internal/storage", Weight: 0.6},
		{Key: "file_extension", Value: "go", Weight: 0.5},
	}
	require.NoError(t, store.StoreMemory(m))

	pattern := types.NewPattern("go-test-before-commit", "Always runs go test before committing")
	pattern.Confidence = 0.8
	require.NoError(t, store.StorePattern(pattern))

	thesis := types.NewThesis(pattern.ID, "Always run go test before committing")
	require.NoError(t, store.StoreThesis(thesis))

	synthesis := types.NewSynthesis(thesis.ID, nil, "Always run `go test ./...` before committing.", types.Resolution{
		Type: types.ResolutionIntegration,
	})
	synthesis.ExemplarMemoryIDs = []string{m.ID, m.ID}
	require.NoError(t, store.StoreSynthesis(synthesis))

	return pattern, synthesis
}

func TestWriter_PublishCreatesRuleWithFrontmatterAndMetadata(t *testing.T) {
	store := storage.NewMemoryStorage()
	pattern, synthesis := seedSynthesis(t, store)
	w := rulewriter.New(store, nil, rulewriter.DefaultConfig())

	rule, wrote, err := w.Publish(context.Background(), pattern, synthesis)
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, 1, rule.Version)
	require.Contains(t, rule.Content, "paths:")
	require.Contains(t, rule.Content, "internal/storage/**")
	require.Contains(t, rule.Content, "<!-- engram:pattern:"+pattern.ID+":synthesis:"+synthesis.ID+":v1:")
	require.Contains(t, rule.Content, ":confidence:0.80 -->")
}

func TestWriter_PublishIsIdempotentOnUnchangedContent(t *testing.T) {
	store := storage.NewMemoryStorage()
	pattern, synthesis := seedSynthesis(t, store)
	w := rulewriter.New(store, nil, rulewriter.DefaultConfig())
	ctx := context.Background()

	first, wrote, err := w.Publish(ctx, pattern, synthesis)
	require.NoError(t, err)
	require.True(t, wrote)

	second, wrote, err := w.Publish(ctx, pattern, synthesis)
	require.NoError(t, err)
	require.False(t, wrote)
	require.Equal(t, first.Version, second.Version)
}

func TestWriter_PublishIncrementsVersionOnChange(t *testing.T) {
	store := storage.NewMemoryStorage()
	pattern, synthesis := seedSynthesis(t, store)
	w := rulewriter.New(store, nil, rulewriter.DefaultConfig())
	ctx := context.Background()

	_, _, err := w.Publish(ctx, pattern, synthesis)
	require.NoError(t, err)

	synthesis.Content = "Always run `go test ./... -race` before committing."
	refreshedSynthesis, err := store.GetSynthesis(synthesis.ID)
	require.NoError(t, err)
	refreshedSynthesis.Content = synthesis.Content

	updated, wrote, err := w.Publish(ctx, pattern, refreshedSynthesis)
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, 2, updated.Version)
}

func TestWriter_IsReadyRejectsLowConfidenceAndRejection(t *testing.T) {
	store := storage.NewMemoryStorage()
	pattern, synthesis := seedSynthesis(t, store)
	w := rulewriter.New(store, nil, rulewriter.DefaultConfig())

	pattern.Confidence = 0.1
	require.False(t, w.IsReady(pattern, synthesis))

	pattern.Confidence = 0.9
	synthesis.Resolution.Type = types.ResolutionRejection
	require.False(t, w.IsReady(pattern, synthesis))
}
