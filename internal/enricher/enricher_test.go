package enricher_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/enricher"
	"engram/internal/errs"
	"engram/internal/types"
)

func memoryWithKey(toolName, key, value string) *types.Memory {
	m := types.NewMemory("s1", types.SourceToolUse)
	m.Metadata.ToolName = toolName
	m.Metadata.SemanticKeys = []types.SemanticKey{{Key: key, Value: value, Weight: 1.0}}
	return m
}

func TestHeuristicEnricher_NamePattern_PrefersUserPrompt(t *testing.T) {
	h := enricher.NewHeuristic()
	group := enricher.PatternMemberGroup{UserPrompts: []string{"Fix the flaky retry test"}}

	got, err := h.NamePattern(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, "Fix the flaky retry test", got.Description)
	assert.Equal(t, "fix-the-flaky-retry-test", got.Name)
}

func TestHeuristicEnricher_NamePattern_FallsBackToDominantKey(t *testing.T) {
	h := enricher.NewHeuristic()
	group := enricher.PatternMemberGroup{
		Memories: []*types.Memory{
			memoryWithKey("Bash", "command_name", "git"),
			memoryWithKey("Bash", "command_name", "git"),
			memoryWithKey("Bash", "command_name", "npm"),
		},
	}

	got, err := h.NamePattern(context.Background(), group)
	require.NoError(t, err)
	assert.Contains(t, got.Name, "git")
}

func TestHeuristicEnricher_NamePattern_FallsBackToHyphenatedTools(t *testing.T) {
	h := enricher.NewHeuristic()
	group := enricher.PatternMemberGroup{
		Memories: []*types.Memory{
			{Metadata: types.MemoryMetadata{ToolName: "Edit"}},
			{Metadata: types.MemoryMetadata{ToolName: "Bash"}},
		},
	}

	got, err := h.NamePattern(context.Background(), group)
	require.NoError(t, err)
	assert.Equal(t, "edit-bash", got.Name)
}

func TestHeuristicEnricher_NarrateSynthesis_PreservesResolutionType(t *testing.T) {
	h := enricher.NewHeuristic()
	thesis := &types.Thesis{Content: "Always runs go test before committing"}
	input := enricher.SynthesisInput{
		Thesis:     thesis,
		Antitheses: []*types.Antithesis{{Content: "once skipped tests under time pressure"}},
		Exemplars:  []*types.Memory{{}, {}},
		Resolution: types.ResolutionConditional,
	}

	got, err := h.NarrateSynthesis(context.Background(), input)
	require.NoError(t, err)
	assert.Contains(t, got.Content, string(types.ResolutionConditional))
	assert.Contains(t, got.Content, thesis.Content)
}

func TestHeuristicEnricher_ClassifyOutput_AlwaysUnavailable(t *testing.T) {
	h := enricher.NewHeuristic()
	_, err := h.ClassifyOutput(context.Background(), types.FeatureVector{}, "content")
	assert.True(t, errors.Is(err, errs.ErrEnricherUnavailable))
}

func TestHeuristicEnricher_NameSkill_ExtractsVerbNounFromContent(t *testing.T) {
	h := enricher.NewHeuristic()
	synthesis := &types.Synthesis{Content: "Run the tests before committing."}

	got, err := h.NameSkill(context.Background(), synthesis)
	require.NoError(t, err)
	assert.Equal(t, "run-tests", got.Name)
	require.Len(t, got.WhenToUse, 1)
}

func TestHeuristicEnricher_NameSkill_ExtractsFromToolSnapshotWhenContentHasNoMatch(t *testing.T) {
	h := enricher.NewHeuristic()
	synthesis := &types.Synthesis{
		Content: "Keeps the workflow consistent across sessions.",
		ToolDataSnapshot: []types.ToolDataEntry{
			{Tool: "Bash", ShortDescription: "build the container image"},
		},
	}

	got, err := h.NameSkill(context.Background(), synthesis)
	require.NoError(t, err)
	assert.Equal(t, "build-container", got.Name)
}

func TestHeuristicEnricher_NameSkill_EmptyNameWhenNoVocabularyMatch(t *testing.T) {
	h := enricher.NewHeuristic()
	synthesis := &types.Synthesis{Content: "Something unrelated happened here."}

	got, err := h.NameSkill(context.Background(), synthesis)
	require.NoError(t, err)
	assert.Empty(t, got.Name)
	require.Len(t, got.WhenToUse, 1)
}

func TestHeuristicEnricher_GenerateScript_ReplaysToolDataSnapshot(t *testing.T) {
	h := enricher.NewHeuristic()
	synthesis := &types.Synthesis{
		ToolDataSnapshot: []types.ToolDataEntry{
			{ShortDescription: "run tests", Action: "go test ./..."},
		},
	}

	got, err := h.GenerateScript(context.Background(), synthesis)
	require.NoError(t, err)
	assert.Contains(t, got.Script, "go test ./...")
}

func TestHeuristicEnricher_GenerateScript_PlaceholderWithoutActions(t *testing.T) {
	h := enricher.NewHeuristic()
	got, err := h.GenerateScript(context.Background(), &types.Synthesis{})
	require.NoError(t, err)
	assert.Contains(t, got.Script, "no-op")
}

func TestCollaboratorEnricher_UnavailableWithoutClient(t *testing.T) {
	c := enricher.NewCollaborator(nil)
	_, err := c.NamePattern(context.Background(), enricher.PatternMemberGroup{})
	assert.True(t, errors.Is(err, errs.ErrEnricherUnavailable))
}

type fakeCollaborator struct {
	response []byte
	err      error
}

func (f fakeCollaborator) Complete(ctx context.Context, shape, prompt string) ([]byte, error) {
	return f.response, f.err
}

func TestCollaboratorEnricher_DecodesValidResponse(t *testing.T) {
	c := enricher.NewCollaborator(fakeCollaborator{response: []byte(`{"title":"Always run tests before pushing"}`)})
	got, err := c.TitleRule(context.Background(), &types.Synthesis{Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Always run tests before pushing", got.Title)
}

func TestCollaboratorEnricher_RejectsSchemaMismatch(t *testing.T) {
	c := enricher.NewCollaborator(fakeCollaborator{response: []byte(`{"title": 42}`)})
	_, err := c.TitleRule(context.Background(), &types.Synthesis{Content: "x"})
	assert.True(t, errors.Is(err, errs.ErrSchemaValidation))
}
