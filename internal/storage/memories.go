package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/types"
)

// memoryModel maps to the memories table.
type memoryModel struct {
	ID                   uuid.UUID `gorm:"primaryKey"`
	OwnerID              string
	Content              string
	Type                 string
	Category             string
	Tags                 json.RawMessage `gorm:"type:jsonb"`
	Context              string
	SourceConversationID string
	Importance           float64
	Embedding            *pgvector.Vector `gorm:"type:vector"`
	AccessCount          int
	LastAccessedAt       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (memoryModel) TableName() string {
	return "memories"
}

// MemoryRepo accesses memory data.
type MemoryRepo struct {
	db *gorm.DB
}

func NewMemoryRepo(db *gorm.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

// Add inserts a memory. The caller assigns ID and timestamps.
func (r *MemoryRepo) Add(ctx context.Context, mem *types.Memory) error {
	record, err := memoryToModel(mem)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// Get returns a memory owned by ownerID, or a not-found error.
func (r *MemoryRepo) Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Memory, error) {
	var record memoryModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFound("memory", id.String())
		}
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	mem := memoryFromModel(record)
	return &mem, nil
}

// List returns the owner's memories, newest first, optionally filtered
// by category.
func (r *MemoryRepo) List(ctx context.Context, ownerID, category string, limit, offset int) ([]types.Memory, error) {
	query := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var records []memoryModel
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	memories := make([]types.Memory, 0, len(records))
	for _, record := range records {
		memories = append(memories, memoryFromModel(record))
	}
	return memories, nil
}

// ListPage walks all memories in stable order for maintenance sweeps.
func (r *MemoryRepo) ListPage(ctx context.Context, limit, offset int) ([]types.Memory, error) {
	var records []memoryModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to page memories: %w", err)
	}
	memories := make([]types.Memory, 0, len(records))
	for _, record := range records {
		memories = append(memories, memoryFromModel(record))
	}
	return memories, nil
}

// ListWithEmbeddings returns the owner's memories with their stored
// vectors, oldest first, for rebuilding an in-process index.
func (r *MemoryRepo) ListWithEmbeddings(ctx context.Context, ownerID string, limit, offset int) ([]types.Memory, error) {
	var records []memoryModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list memory embeddings: %w", err)
	}
	memories := make([]types.Memory, 0, len(records))
	for _, record := range records {
		mem := memoryFromModel(record)
		if record.Embedding != nil {
			mem.Embedding = record.Embedding.Slice()
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// Delete removes one memory owned by ownerID.
func (r *MemoryRepo) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&memoryModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFound("memory", id.String())
	}
	return nil
}

// DeleteByIDs removes a batch of memories and reports how many rows
// were actually deleted.
func (r *MemoryRepo) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&memoryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// memoryRow carries one similarity search result row.
type memoryRow struct {
	ID                   uuid.UUID
	OwnerID              string
	Content              string
	Type                 string
	Category             string
	Tags                 json.RawMessage
	Context              string
	SourceConversationID string
	Importance           float64
	AccessCount          int
	LastAccessedAt       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Similarity           float64
}

// SearchSimilar returns the owner's memories whose cosine similarity to
// embedding exceeds threshold, most similar first. Composite re-ranking
// happens upstream where decay and access boosts are known.
func (r *MemoryRepo) SearchSimilar(ctx context.Context, ownerID string, embedding []float32, topK int, threshold float64, filter types.MemoryFilter) ([]types.RetrievedMemory, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	conditions := "owner_id = $2 AND embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $3"
	args := []any{pgvector.NewVector(embedding), ownerID, threshold}
	argIndex := 4

	if filter.Type != "" {
		conditions += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, filter.Type)
		argIndex++
	}
	if filter.MinImportance > 0 {
		conditions += fmt.Sprintf(" AND importance >= $%d", argIndex)
		args = append(args, filter.MinImportance)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, owner_id, content, type, category, tags, context, source_conversation_id,
		       importance, access_count, last_accessed_at, created_at, updated_at,
		       1 - (embedding <=> $1) AS similarity
		FROM memories
		WHERE %s
		ORDER BY similarity DESC
		LIMIT $%d`, conditions, argIndex)
	args = append(args, topK)

	var rows []memoryRow
	err := r.db.WithContext(ctx).
		Raw(query, args...).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}

	results := make([]types.RetrievedMemory, 0, len(rows))
	for _, row := range rows {
		var tags []string
		_ = unmarshalJSON(row.Tags, &tags)
		results = append(results, types.RetrievedMemory{
			Memory: types.Memory{
				ID:                   row.ID,
				OwnerID:              row.OwnerID,
				Content:              row.Content,
				Type:                 row.Type,
				Category:             row.Category,
				Tags:                 tags,
				Context:              row.Context,
				SourceConversationID: row.SourceConversationID,
				Importance:           row.Importance,
				AccessCount:          row.AccessCount,
				LastAccessedAt:       row.LastAccessedAt,
				CreatedAt:            row.CreatedAt,
				UpdatedAt:            row.UpdatedAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results, nil
}

// IncrementAccess bumps access counters after retrieval, outside the
// request's latency budget.
func (r *MemoryRepo) IncrementAccess(ctx context.Context, ids []uuid.UUID, accessedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&memoryModel{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": accessedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment memory access: %w", err)
	}
	return nil
}

// CountByOwner returns how many memories the owner has.
func (r *MemoryRepo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&memoryModel{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// PruneExcess deletes the owner's memories beyond keep, retaining the
// most important and, within equal importance, the most recent.
func (r *MemoryRepo) PruneExcess(ctx context.Context, ownerID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
		DELETE FROM memories
		WHERE owner_id = $1 AND id NOT IN (
			SELECT id FROM memories
			WHERE owner_id = $1
			ORDER BY importance DESC, created_at DESC
			LIMIT $2
		)`
	result := r.db.WithContext(ctx).Exec(query, ownerID, keep)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune memories: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func memoryToModel(mem *types.Memory) (memoryModel, error) {
	tags, err := marshalJSON(mem.Tags)
	if err != nil {
		return memoryModel{}, fmt.Errorf("failed to encode memory tags: %w", err)
	}
	var vector *pgvector.Vector
	if len(mem.Embedding) > 0 {
		v := pgvector.NewVector(mem.Embedding)
		vector = &v
	}
	return memoryModel{
		ID:                   mem.ID,
		OwnerID:              mem.OwnerID,
		Content:              mem.Content,
		Type:                 mem.Type,
		Category:             mem.Category,
		Tags:                 tags,
		Context:              mem.Context,
		SourceConversationID: mem.SourceConversationID,
		Importance:           mem.Importance,
		Embedding:            vector,
		AccessCount:          mem.AccessCount,
		LastAccessedAt:       mem.LastAccessedAt,
		CreatedAt:            mem.CreatedAt,
		UpdatedAt:            mem.UpdatedAt,
	}, nil
}

func memoryFromModel(record memoryModel) types.Memory {
	var tags []string
	_ = unmarshalJSON(record.Tags, &tags)
	return types.Memory{
		ID:                   record.ID,
		OwnerID:              record.OwnerID,
		Content:              record.Content,
		Type:                 record.Type,
		Category:             record.Category,
		Tags:                 tags,
		Context:              record.Context,
		SourceConversationID: record.SourceConversationID,
		Importance:           record.Importance,
		AccessCount:          record.AccessCount,
		LastAccessedAt:       record.LastAccessedAt,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
}
