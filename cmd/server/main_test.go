package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// runBackfill is called from main(), which no test runs; this test covers
// its nil-Embedder no-op path directly on InitializeServer's components.
func TestRunBackfill_NilEmbedderIsNoOp(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("VOYAGE_API_KEY", "")

	components, err := InitializeServer()
	require.NoError(t, err)
	defer components.Cleanup()

	require.Nil(t, components.Embedder)
	require.NotPanics(t, func() {
		runBackfill(context.Background(), components)
	})
}
