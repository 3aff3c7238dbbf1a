package encoder_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/encoder"
	"engram/internal/storage"
	"engram/internal/types"
)

// fakeStore is a minimal AssociationFinder backed by a slice, enough to
// exercise Encode's association lookup without a real Store.
type fakeStore struct {
	memories []*types.Memory
}

func (f *fakeStore) QueryMemories(filter storage.MemoryFilter) ([]*types.Memory, error) {
	var out []*types.Memory
	for _, m := range f.memories {
		if filter.SessionID != "" && m.Metadata.SessionID != filter.SessionID {
			continue
		}
		if filter.SemanticKey != "" {
			match := false
			for _, k := range m.Metadata.SemanticKeys {
				if k.Key == filter.SemanticKey && (filter.SemanticValue == "" || k.Value == filter.SemanticValue) {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}
func (f *fakeEmbedder) Dimension() int   { return len(f.vec) }
func (f *fakeEmbedder) Model() string    { return "fake" }
func (f *fakeEmbedder) Provider() string { return "fake" }

func TestEncodeFast_SetsCoreFields(t *testing.T) {
	enc := encoder.New(nil, nil)
	tu := types.ToolUsage{
		SessionID: "s1",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "git status"},
	}

	m := enc.EncodeFast(tu)

	assert.Equal(t, types.TierWorking, m.Tier)
	assert.Equal(t, types.SourceToolUse, m.Metadata.Source)
	assert.Nil(t, m.Embedding, "EncodeFast must never set an embedding")
	assert.Nil(t, m.Metadata.Associations, "EncodeFast must never compute associations")
	assert.Contains(t, m.Content, "shell command")
}

func TestEncodeFast_SemanticKeys(t *testing.T) {
	enc := encoder.New(nil, nil)
	tu := types.ToolUsage{
		SessionID: "s1",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "  /usr/bin/git status -s"},
	}

	m := enc.EncodeFast(tu)

	want := map[string]string{
		"tool":         "bash",
		"command":      "  /usr/bin/git status -s",
		"command_name": "git",
	}
	got := make(map[string]string)
	for _, k := range m.Metadata.SemanticKeys {
		got[k.Key] = k.Value
	}
	for k, v := range want {
		assert.Equal(t, v, got[k], "semantic key %q", k)
	}
}

func TestEncodeFast_FileTool(t *testing.T) {
	enc := encoder.New(nil, nil)
	tu := types.ToolUsage{
		SessionID: "s1",
		ToolName:  "Edit",
		ToolInput: map[string]any{"file_path": "/repo/internal/foo/bar.go"},
	}

	m := enc.EncodeFast(tu)

	got := make(map[string]string)
	for _, k := range m.Metadata.SemanticKeys {
		got[k.Key] = k.Value
	}
	assert.Equal(t, "go", got["file_extension"])
	assert.Equal(t, "/repo/internal/foo", got["directory"])
}

func TestEncodeFast_UnknownToolFallsBackToGeneric(t *testing.T) {
	enc := encoder.New(nil, nil)
	tu := types.ToolUsage{
		SessionID: "s1",
		ToolName:  "CustomMCPTool",
		ToolInput: map[string]any{"whatever": "value"},
	}

	m := enc.EncodeFast(tu)

	require.Len(t, m.Metadata.SemanticKeys, 1)
	assert.Equal(t, "tool", m.Metadata.SemanticKeys[0].Key)
}

func TestEncodeFast_ErrorTagging(t *testing.T) {
	enc := encoder.New(nil, nil)
	tu := types.ToolUsage{
		SessionID: "s1",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "false"},
		ToolError: "exit status 1",
	}

	m := enc.EncodeFast(tu)

	assert.Contains(t, m.Metadata.Tags, "error")

	foundKey := false
	for _, k := range m.Metadata.SemanticKeys {
		if k.Key == "has_error" && k.Value == "true" {
			foundKey = true
		}
	}
	assert.True(t, foundKey, "expected a has_error semantic key, got %+v", m.Metadata.SemanticKeys)
}

func TestEncodeFast_TruncatesInputAndOutput(t *testing.T) {
	enc := encoder.New(nil, nil)
	longCmd := strings.Repeat("a", 1000)
	longOut := strings.Repeat("b", 1000)
	tu := types.ToolUsage{
		SessionID:  "s1",
		ToolName:   "Bash",
		ToolInput:  map[string]any{"command": longCmd},
		ToolOutput: longOut,
	}

	m := enc.EncodeFast(tu)

	assert.LessOrEqual(t, len([]rune(m.Metadata.ToolOutput)), 201)
	assert.NotContains(t, m.Content, strings.Repeat("a", 600))
}

func TestEncode_ComputesEmbeddingWhenAvailable(t *testing.T) {
	enc := encoder.New(&fakeStore{}, &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}})
	tu := types.ToolUsage{SessionID: "s1", ToolName: "Bash", ToolInput: map[string]any{"command": "ls"}}

	m, err := enc.Encode(context.Background(), tu)
	require.NoError(t, err)
	assert.Len(t, m.Embedding, 3)
}

func TestEncode_EmbedderFailureDoesNotFailEncode(t *testing.T) {
	enc := encoder.New(&fakeStore{}, &fakeEmbedder{err: context.DeadlineExceeded})
	tu := types.ToolUsage{SessionID: "s1", ToolName: "Bash", ToolInput: map[string]any{"command": "ls"}}

	m, err := enc.Encode(context.Background(), tu)
	require.NoError(t, err, "Encode must not fail when the embedder fails")
	assert.Nil(t, m.Embedding)
}

func TestEncode_FindsAssociationsBySemanticKeyWithinSession(t *testing.T) {
	prior := types.NewMemory("s1", types.SourceToolUse)
	prior.Metadata.SemanticKeys = []types.SemanticKey{
		{Key: "command_name", Value: "git", Weight: 0.9},
	}
	other := types.NewMemory("s2", types.SourceToolUse)
	other.Metadata.SemanticKeys = []types.SemanticKey{
		{Key: "command_name", Value: "git", Weight: 0.9},
	}

	enc := encoder.New(&fakeStore{memories: []*types.Memory{prior, other}}, nil)
	tu := types.ToolUsage{SessionID: "s1", ToolName: "Bash", ToolInput: map[string]any{"command": "git log"}}

	m, err := enc.Encode(context.Background(), tu)
	require.NoError(t, err)
	require.Len(t, m.Metadata.Associations, 1)
	assert.Equal(t, prior.ID, m.Metadata.Associations[0])
}

func TestEncode_NoStoreMeansNoAssociations(t *testing.T) {
	enc := encoder.New(nil, nil)
	tu := types.ToolUsage{SessionID: "s1", ToolName: "Bash", ToolInput: map[string]any{"command": "ls"}}

	m, err := enc.Encode(context.Background(), tu)
	require.NoError(t, err)
	assert.Nil(t, m.Metadata.Associations)
}
