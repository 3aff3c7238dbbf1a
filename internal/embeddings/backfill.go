package embeddings

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// BackfillStorage defines the storage operations needed by BackfillRunner.
// It mirrors storage.MemoryRepository's shape rather than importing it
// directly, avoiding an import cycle between embeddings and storage.
type BackfillStorage interface {
	ListMemoriesWithoutEmbedding(limit int) ([]*MemoryForBackfill, error)
	UpdateMemoryEmbedding(memoryID string, embedding []float32) error
}

// MemoryForBackfill is the minimal memory shape backfill needs to embed.
type MemoryForBackfill struct {
	MemoryID string
	Content  string
}

// BackfillStats tracks backfill operation statistics
type BackfillStats struct {
	Total     int64
	Processed int64
	Succeeded int64
	Failed    int64
	Skipped   int64
	Duration  time.Duration
}

// BackfillConfig configures the backfill operation
type BackfillConfig struct {
	BatchSize      int           // Number of memories to process per batch
	MaxConcurrency int           // Maximum concurrent embedding operations
	Timeout        time.Duration // Timeout per embedding operation
	DryRun         bool          // If true, don't actually update the database
}

// DefaultBackfillConfig returns default backfill configuration
func DefaultBackfillConfig() *BackfillConfig {
	return &BackfillConfig{
		BatchSize:      100,
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
		DryRun:         false,
	}
}

// BackfillRunner embeds memories that predate embeddings being enabled, or
// that were written while the embedder was unavailable.
type BackfillRunner struct {
	storage  BackfillStorage
	embedder Embedder
	config   *BackfillConfig
}

// NewBackfillRunner creates a new backfill runner
func NewBackfillRunner(storage BackfillStorage, embedder Embedder, config *BackfillConfig) *BackfillRunner {
	if config == nil {
		config = DefaultBackfillConfig()
	}
	return &BackfillRunner{
		storage:  storage,
		embedder: embedder,
		config:   config,
	}
}

// Run executes the backfill operation
func (r *BackfillRunner) Run(ctx context.Context) (*BackfillStats, error) {
	start := time.Now()
	stats := &BackfillStats{}

	if r.storage == nil {
		return stats, fmt.Errorf("storage is nil")
	}
	if r.embedder == nil {
		return stats, fmt.Errorf("embedder is nil")
	}

	memories, err := r.storage.ListMemoriesWithoutEmbedding(r.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("failed to list memories: %w", err)
	}

	atomic.StoreInt64(&stats.Total, int64(len(memories)))

	if len(memories) == 0 {
		log.Printf("No memories found needing embedding backfill")
		stats.Duration = time.Since(start)
		return stats, nil
	}

	log.Printf("Starting backfill for %d memories (concurrency=%d, dry_run=%v)",
		len(memories), r.config.MaxConcurrency, r.config.DryRun)

	semaphore := make(chan struct{}, r.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, m := range memories {
		select {
		case <-ctx.Done():
			wg.Wait()
			stats.Duration = time.Since(start)
			return stats, ctx.Err()
		default:
		}

		wg.Add(1)
		go func(m *MemoryForBackfill) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			r.processMemory(ctx, m, stats)
		}(m)
	}

	wg.Wait()
	stats.Duration = time.Since(start)

	log.Printf("Backfill complete: processed=%d, succeeded=%d, failed=%d, skipped=%d, duration=%v",
		stats.Processed, stats.Succeeded, stats.Failed, stats.Skipped, stats.Duration)

	return stats, nil
}

// processMemory generates and stores the embedding for a single memory
func (r *BackfillRunner) processMemory(ctx context.Context, m *MemoryForBackfill, stats *BackfillStats) {
	atomic.AddInt64(&stats.Processed, 1)

	if m.Content == "" {
		atomic.AddInt64(&stats.Skipped, 1)
		log.Printf("[SKIP] Memory %s: empty content", m.MemoryID)
		return
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	embedding, err := r.embedder.Embed(embedCtx, m.Content)
	if err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		log.Printf("[FAIL] Memory %s: embedding generation failed: %v", m.MemoryID, err)
		return
	}

	if len(embedding) == 0 {
		atomic.AddInt64(&stats.Failed, 1)
		log.Printf("[FAIL] Memory %s: empty embedding returned", m.MemoryID)
		return
	}

	if r.config.DryRun {
		atomic.AddInt64(&stats.Succeeded, 1)
		log.Printf("[DRY-RUN] Memory %s: would update with %d-dim embedding", m.MemoryID, len(embedding))
		return
	}

	if err := r.storage.UpdateMemoryEmbedding(m.MemoryID, embedding); err != nil {
		atomic.AddInt64(&stats.Failed, 1)
		log.Printf("[FAIL] Memory %s: storage update failed: %v", m.MemoryID, err)
		return
	}

	atomic.AddInt64(&stats.Succeeded, 1)
	log.Printf("[OK] Memory %s: updated with %d-dim embedding", m.MemoryID, len(embedding))
}

// NewBackfillStorageAdapter adapts a storage backend's own list/update
// methods to BackfillStorage via function callbacks, avoiding a direct
// dependency on the storage package.
func NewBackfillStorageAdapter(
	listFunc func(limit int) ([]*MemoryForBackfill, error),
	updateFunc func(memoryID string, embedding []float32) error,
) BackfillStorage {
	return &backfillStorageAdapter{listFunc: listFunc, updateFunc: updateFunc}
}

type backfillStorageAdapter struct {
	listFunc   func(limit int) ([]*MemoryForBackfill, error)
	updateFunc func(memoryID string, embedding []float32) error
}

func (a *backfillStorageAdapter) ListMemoriesWithoutEmbedding(limit int) ([]*MemoryForBackfill, error) {
	return a.listFunc(limit)
}

func (a *backfillStorageAdapter) UpdateMemoryEmbedding(memoryID string, embedding []float32) error {
	return a.updateFunc(memoryID, embedding)
}
