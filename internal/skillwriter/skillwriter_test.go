package skillwriter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"engram/internal/skillwriter"
	"engram/internal/storage"
	"engram/internal/types"
)

func seedSkillSynthesis(t *testing.T, store *storage.MemoryStorage) (*types.Pattern, *types.Synthesis) {
	t.Helper()
	pattern := types.NewPattern("lint-then-test", "Runs lint then tests before pushing")
	pattern.Confidence = 0.8
	require.NoError(t, store.StorePattern(pattern))

	thesis := types.NewThesis(pattern.ID, "Always lint then test before pushing")
	require.NoError(t, store.StoreThesis(thesis))

	synthesis := types.NewSynthesis(thesis.ID, nil, "Run lint then tests before pushing changes.", types.Resolution{
		Type: types.ResolutionIntegration,
	})
	synthesis.SkillCandidate = true
	synthesis.ToolDataSnapshot = []types.ToolDataEntry{
		{Tool: "Bash", Action: "golangci-lint run ./...", ShortDescription: "ran lint"},
		{Tool: "Bash", Action: "go test ./...", ShortDescription: "ran tests"},
	}
	require.NoError(t, store.StoreSynthesis(synthesis))

	return pattern, synthesis
}

func TestWriter_PublishCreatesNewSkillAtVersionOne(t *testing.T) {
	store := storage.NewMemoryStorage()
	pattern, synthesis := seedSkillSynthesis(t, store)
	w := skillwriter.New(store, nil)

	skill, wrote, err := w.Publish(context.Background(), pattern, synthesis)
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, "1.0", skill.Version)
	require.Contains(t, skill.Content, "## Workflow")
	require.Contains(t, skill.ScriptBody, "golangci-lint run ./...")
	require.Contains(t, skill.Content, "sourcePatternId: "+pattern.ID)
	require.Contains(t, skill.Content, "sourceSynthesisId: "+synthesis.ID)
	require.Contains(t, skill.Content, "author: engram")
}

func TestWriter_PublishMergesIntoExistingSkillAndBumpsVersion(t *testing.T) {
	store := storage.NewMemoryStorage()
	pattern, synthesis := seedSkillSynthesis(t, store)
	w := skillwriter.New(store, nil)
	ctx := context.Background()

	first, _, err := w.Publish(ctx, pattern, synthesis)
	require.NoError(t, err)

	synthesis.ToolDataSnapshot = append(synthesis.ToolDataSnapshot, types.ToolDataEntry{
		Tool: "Bash", Action: "go vet ./...", ShortDescription: "ran vet",
	})
	second, wrote, err := w.Publish(ctx, pattern, synthesis)
	require.NoError(t, err)
	require.True(t, wrote)
	require.Equal(t, first.Name, second.Name)
	require.Equal(t, "1.1", second.Version)
}
