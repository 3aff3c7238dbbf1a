package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engram/internal/types"
)

func TestRegistry_BuiltinShellExtractor(t *testing.T) {
	r := NewRegistry()
	keys := r.Extract("Bash", map[string]any{"command": "npm test"})
	assert.Len(t, keys, 2)
}

func TestRegistry_UnknownToolUsesGeneric(t *testing.T) {
	r := NewRegistry()
	keys := r.Extract("SomeCustomTool", map[string]any{"x": "y"})
	assert.Nil(t, keys, "expected no keys from the generic fallback")
}

func TestRegistry_RegisterOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	r.Register("bash", func(input map[string]any) []types.SemanticKey {
		return []types.SemanticKey{{Key: "overridden", Value: "yes", Weight: 1.0}}
	})

	keys := r.Extract("BASH", map[string]any{"command": "ls"})
	require.Len(t, keys, 1)
	assert.Equal(t, "overridden", keys[0].Key)
}
