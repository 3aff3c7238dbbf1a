package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitializeServer(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("VOYAGE_API_KEY", "")

	components, err := InitializeServer()
	require.NoError(t, err)
	defer components.Cleanup()

	require.NotNil(t, components.Storage)
	require.NotNil(t, components.Encoder)
	require.NotNil(t, components.Retriever)
	require.NotNil(t, components.Enricher)
	require.NotNil(t, components.Rules)
	require.NotNil(t, components.Skills)
	require.NotNil(t, components.Artifacts)
	require.NotNil(t, components.Dialectic)
	require.NotNil(t, components.Stages)
	require.NotNil(t, components.Consolidator)
	require.NotNil(t, components.Worker)
	require.NotNil(t, components.Server)

	// No VOYAGE_API_KEY: embeddings are deferred, not an init failure.
	require.Nil(t, components.Embedder)
}

func TestInitializeServer_WithVoyageAPIKey(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("VOYAGE_API_KEY", "test-key")

	components, err := InitializeServer()
	require.NoError(t, err)
	defer components.Cleanup()

	require.NotNil(t, components.Embedder)
}

func TestInitializeServer_Cleanup(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "memory")

	components, err := InitializeServer()
	require.NoError(t, err)

	require.NoError(t, components.Cleanup())
	// Idempotent: stopping a stopped worker and closing closed storage
	// must not error or panic.
	require.NoError(t, components.Cleanup())
}

func TestServerComponents_NilFieldsCleanupIsSafe(t *testing.T) {
	components := &ServerComponents{}
	require.NoError(t, components.Cleanup())
}
