// Package embeddings also provides a chromem-go-backed vector index used by
// the Retriever for the vector leg of hybrid search.
package embeddings

import (
	"context"
	"fmt"
	"log"

	chromem "github.com/philippgille/chromem-go"
)

// VectorIndex wraps chromem-go with one collection per memory tier, so a
// retrieval confined to a tier (e.g. only working-memory) never scans
// vectors that live in another.
type VectorIndex struct {
	db       *chromem.DB
	embedder Embedder
}

// VectorIndexConfig configures a VectorIndex.
type VectorIndexConfig struct {
	PersistPath string // empty = in-memory only
	Embedder    Embedder
}

// NewVectorIndex creates a vector index, persistent if PersistPath is set.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	var db *chromem.DB
	var err error

	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create persistent vector index: %w", err)
		}
		log.Printf("vector index initialized with persistence at %s", cfg.PersistPath)
	} else {
		db = chromem.NewDB()
		log.Printf("vector index initialized (in-memory only)")
	}

	return &VectorIndex{db: db, embedder: cfg.Embedder}, nil
}

// collectionForTier maps a memory tier to its chromem-go collection name.
func collectionForTier(tier string) string {
	return "memories_" + tier
}

func (vi *VectorIndex) getOrCreateCollection(tier string) (*chromem.Collection, error) {
	name := collectionForTier(tier)
	if c := vi.db.GetCollection(name, nil); c != nil {
		return c, nil
	}
	return vi.db.CreateCollection(name, nil, nil)
}

// Upsert embeds content (if embedding is nil) and stores it under id within
// the tier's collection.
func (vi *VectorIndex) Upsert(ctx context.Context, tier, id, content string, embedding []float32, metadata map[string]string) error {
	collection, err := vi.getOrCreateCollection(tier)
	if err != nil {
		return fmt.Errorf("failed to get collection for tier %s: %w", tier, err)
	}

	if len(embedding) == 0 {
		if vi.embedder == nil {
			return fmt.Errorf("no embedding supplied and no embedder configured")
		}
		embedding, err = vi.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
	}

	if err := collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  metadata,
		Embedding: embedding,
	}); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// Delete removes a memory's vector from a tier's collection.
func (vi *VectorIndex) Delete(tier, id string) error {
	collection := vi.db.GetCollection(collectionForTier(tier), nil)
	if collection == nil {
		return nil
	}
	return collection.Delete(context.Background(), nil, nil, id)
}

// Search runs cosine-similarity search within a single tier's collection.
func (vi *VectorIndex) Search(ctx context.Context, tier, query string, limit int) ([]chromem.Result, error) {
	if limit <= 0 {
		limit = 10
	}

	collection := vi.db.GetCollection(collectionForTier(tier), nil)
	if collection == nil {
		return nil, nil
	}

	queryEmbedding, err := vi.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	n := limit
	if count := collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := collection.QueryEmbedding(ctx, queryEmbedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

// SearchAllTiers merges Search results across every given tier, sorted by
// similarity descending, capped at limit.
func (vi *VectorIndex) SearchAllTiers(ctx context.Context, tiers []string, query string, limit int) ([]chromem.Result, error) {
	var merged []chromem.Result
	for _, tier := range tiers {
		results, err := vi.Search(ctx, tier, query, limit)
		if err != nil {
			return nil, err
		}
		merged = append(merged, results...)
	}
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].Similarity > merged[j-1].Similarity; j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// Close is a no-op: chromem-go persists on write when configured with a
// PersistPath.
func (vi *VectorIndex) Close() error {
	return nil
}
