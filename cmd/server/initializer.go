package main

import (
	"context"
	"log"

	"engram/internal/artifacts"
	"engram/internal/config"
	"engram/internal/consolidator"
	"engram/internal/dialectic"
	"engram/internal/embeddings"
	"engram/internal/encoder"
	"engram/internal/enricher"
	"engram/internal/retriever"
	"engram/internal/rulewriter"
	"engram/internal/server"
	"engram/internal/skillwriter"
	"engram/internal/stages"
	"engram/internal/storage"
	"engram/internal/worker"
)

// ServerComponents holds every initialized component of the learning
// pipeline. InitializeServer wires them in dependency order; Cleanup
// releases what needs releasing.
type ServerComponents struct {
	Storage      storage.Storage
	Embedder     embeddings.Embedder
	Encoder      *encoder.Encoder
	Retriever    *retriever.Retriever
	Enricher     enricher.Enricher
	Dialectic    *dialectic.Engine
	Stages       *stages.Pipeline
	Consolidator *consolidator.Consolidator
	Rules        *rulewriter.Writer
	Skills       *skillwriter.Writer
	Artifacts    *artifacts.Publisher
	Worker       *worker.Worker
	Server       *server.Server
}

// InitializeServer creates and wires every component. Extracted from
// main() so tests can construct the same graph without a stdio transport.
func InitializeServer() (*ServerComponents, error) {
	components := &ServerComponents{}
	cfg := config.ConfigFromEnv()

	store, err := storage.NewStorage(cfg.Store)
	if err != nil {
		return nil, err
	}
	components.Storage = store

	if cfg.Embedding.APIKey != "" {
		components.Embedder = embeddings.NewVoyageEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
		log.Printf("Initialized Voyage AI embedder (model: %s)", cfg.Embedding.Model)
	} else {
		log.Println("embeddings disabled or VOYAGE_API_KEY not set; embeddings deferred until configured")
	}

	components.Encoder = encoder.New(store, components.Embedder)
	components.Retriever = retriever.New(store, components.Embedder, nil, cfg.Retriever)
	log.Println("Initialized encoder and retriever")

	components.Enricher = enricher.NewHeuristic()
	log.Println("Initialized heuristic enricher (no LLM collaborator configured)")

	components.Rules = rulewriter.New(store, components.Enricher, cfg.Artifact.Rules)
	components.Skills = skillwriter.New(store, components.Enricher)
	components.Artifacts = artifacts.New(components.Rules, components.Skills)
	log.Println("Initialized rule writer, skill writer, and artifact publisher")

	components.Dialectic = dialectic.New(store, components.Embedder, components.Enricher, components.Artifacts, cfg.Dialectic)
	components.Stages = stages.New(store, components.Retriever, encoder.NewRegistry(), cfg.Stages)
	components.Consolidator = consolidator.New(store, cfg.Consolidation)
	log.Println("Initialized dialectic engine, stage pipeline, and consolidator")

	components.Worker = worker.New(
		store,
		components.Embedder,
		components.Enricher,
		components.Dialectic,
		components.Stages,
		components.Consolidator,
		components.Artifacts,
		cfg.Worker,
	)
	log.Println("Initialized worker")

	components.Server = server.New(store, components.Worker)
	log.Println("Initialized debug/introspection server")

	return components, nil
}

// runBackfill embeds any memory stored before an Embedder was configured.
// Safe to call with a nil Embedder; it then does nothing.
func runBackfill(ctx context.Context, components *ServerComponents) {
	if components.Embedder == nil {
		return
	}
	store := components.Storage
	adapter := embeddings.NewBackfillStorageAdapter(
		func(limit int) ([]*embeddings.MemoryForBackfill, error) {
			memories, err := store.ListMemoriesWithoutEmbedding(limit)
			if err != nil {
				return nil, err
			}
			out := make([]*embeddings.MemoryForBackfill, len(memories))
			for i, m := range memories {
				out[i] = &embeddings.MemoryForBackfill{MemoryID: m.ID, Content: m.Content}
			}
			return out, nil
		},
		store.UpdateMemoryEmbedding,
	)
	runner := embeddings.NewBackfillRunner(adapter, components.Embedder, embeddings.DefaultBackfillConfig())
	stats, err := runner.Run(ctx)
	if err != nil {
		log.Printf("Warning: embedding backfill failed: %v", err)
		return
	}
	if stats.Processed > 0 {
		log.Printf("Embedding backfill: %d processed, %d succeeded, %d failed", stats.Processed, stats.Succeeded, stats.Failed)
	}
}

// Cleanup stops the worker and closes storage.
func (c *ServerComponents) Cleanup() error {
	if c.Worker != nil {
		c.Worker.Stop()
	}
	if c.Storage != nil {
		return storage.CloseStorage(c.Storage)
	}
	return nil
}
