package storage

import (
	"context"

	"github.com/givelift/recall/internal/types"
)

// Usage aggregates the owner's stored footprint.
func (s *Store) Usage(ctx context.Context, ownerID string) (types.StorageUsage, error) {
	documents, err := s.Documents.CountByOwner(ctx, ownerID)
	if err != nil {
		return types.StorageUsage{}, err
	}
	totalBytes, err := s.Documents.SumBytesByOwner(ctx, ownerID)
	if err != nil {
		return types.StorageUsage{}, err
	}
	chunks, err := s.Documents.CountChunksByOwner(ctx, ownerID)
	if err != nil {
		return types.StorageUsage{}, err
	}
	return types.StorageUsage{
		DocumentCount: int(documents),
		TotalBytes:    totalBytes,
		ChunkCount:    int(chunks),
	}, nil
}
