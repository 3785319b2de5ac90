// Package vectorindex fronts the persistent store's nearest-neighbor
// primitives and enforces upload quotas ahead of ingestion.
package vectorindex

import (
	"context"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/types"
)

// MemorySearcher is the store primitive for memory similarity queries.
type MemorySearcher interface {
	SearchSimilar(ctx context.Context, ownerID string, embedding []float32, topK int, threshold float64, filter types.MemoryFilter) ([]types.RetrievedMemory, error)
}

// ChunkSearcher is the store primitive for chunk similarity queries.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, ownerID string, embedding []float32, topK int, threshold float64, filter types.ChunkFilter) ([]types.RetrievedChunk, error)
}

// UsageReader reports an owner's stored footprint.
type UsageReader interface {
	Usage(ctx context.Context, ownerID string) (types.StorageUsage, error)
}

// Gateway validates and delegates similarity searches. Results come
// back in the store's order (descending similarity); the gateway never
// re-sorts.
type Gateway struct {
	memories MemorySearcher
	chunks   ChunkSearcher
	usage    UsageReader
}

func NewGateway(memories MemorySearcher, chunks ChunkSearcher, usage UsageReader) *Gateway {
	return &Gateway{
		memories: memories,
		chunks:   chunks,
		usage:    usage,
	}
}

// SearchMemories returns the owner's memories most similar to
// queryVector, filtered by threshold and the optional scope filter.
func (g *Gateway) SearchMemories(ctx context.Context, ownerID string, queryVector []float32, maxResults int, threshold float64, filter types.MemoryFilter) ([]types.RetrievedMemory, error) {
	if err := validateSearch(ownerID, queryVector, maxResults); err != nil {
		return nil, err
	}
	return g.memories.SearchSimilar(ctx, ownerID, queryVector, maxResults, threshold, filter)
}

// SearchChunks returns the owner's document chunks most similar to
// queryVector, filtered by threshold and the optional scope filter.
func (g *Gateway) SearchChunks(ctx context.Context, ownerID string, queryVector []float32, maxResults int, threshold float64, filter types.ChunkFilter) ([]types.RetrievedChunk, error) {
	if err := validateSearch(ownerID, queryVector, maxResults); err != nil {
		return nil, err
	}
	return g.chunks.SearchChunks(ctx, ownerID, queryVector, maxResults, threshold, filter)
}

// StorageUsage reports the owner's stored footprint.
func (g *Gateway) StorageUsage(ctx context.Context, ownerID string) (types.StorageUsage, error) {
	return g.usage.Usage(ctx, ownerID)
}

func validateSearch(ownerID string, queryVector []float32, maxResults int) error {
	if ownerID == "" {
		return errors.NewValidation("owner id is required")
	}
	if len(queryVector) == 0 {
		return errors.NewValidation("query vector is empty")
	}
	if maxResults <= 0 {
		return errors.NewValidation("max results must be positive, got %d", maxResults)
	}
	return nil
}
