package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/types"
)

// documentModel maps to the documents table.
type documentModel struct {
	ID            uuid.UUID `gorm:"primaryKey"`
	OwnerID       string
	Title         string
	SourceName    string
	MIMEType      string `gorm:"column:mime_type"`
	SizeBytes     int64
	PageCount     *int
	WordCount     *int
	Language      string
	Tags          json.RawMessage `gorm:"type:jsonb"`
	Status        string
	FailureReason string
	ChunkCount    int
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

func (documentModel) TableName() string {
	return "documents"
}

// chunkModel maps to the document_chunks table.
type chunkModel struct {
	ID           uuid.UUID `gorm:"primaryKey"`
	DocumentID   uuid.UUID
	OwnerID      string
	Ordinal      int
	Content      string
	TokenCount   int
	PageEstimate *int
	Embedding    *pgvector.Vector `gorm:"type:vector"`
	CreatedAt    time.Time
}

func (chunkModel) TableName() string {
	return "document_chunks"
}

// DocumentRepo accesses document and chunk data.
type DocumentRepo struct {
	db *gorm.DB
}

func NewDocumentRepo(db *gorm.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Create inserts a new document record. The caller assigns the ID and
// CreatedAt before calling.
func (r *DocumentRepo) Create(ctx context.Context, doc *types.Document) error {
	record, err := documentToModel(doc)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Get returns a document owned by ownerID, or a not-found error.
func (r *DocumentRepo) Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Document, error) {
	var record documentModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NewNotFound("document", id.String())
		}
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	doc := documentFromModel(record)
	return &doc, nil
}

// List returns the owner's documents, newest first.
func (r *DocumentRepo) List(ctx context.Context, ownerID string, limit, offset int) ([]types.Document, error) {
	var records []documentModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := make([]types.Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, documentFromModel(record))
	}
	return docs, nil
}

// UpdateStatus moves a document through its lifecycle. failureReason is
// only persisted for the failed status.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status types.DocumentStatus, failureReason string) error {
	updates := map[string]any{"status": string(status)}
	if status == types.DocumentFailed {
		updates["failure_reason"] = failureReason
	}
	result := r.db.WithContext(ctx).
		Model(&documentModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update document status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFound("document", id.String())
	}
	return nil
}

// Finalize stores the processing results and marks the document ready.
func (r *DocumentRepo) Finalize(ctx context.Context, doc *types.Document) error {
	updates := map[string]any{
		"status":       string(types.DocumentReady),
		"chunk_count":  doc.ChunkCount,
		"word_count":   doc.WordCount,
		"page_count":   doc.PageCount,
		"language":     doc.Language,
		"processed_at": doc.ProcessedAt,
	}
	result := r.db.WithContext(ctx).
		Model(&documentModel{}).
		Where("id = ?", doc.ID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finalize document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFound("document", doc.ID.String())
	}
	return nil
}

// ReplaceChunks atomically swaps a document's chunk set. Retried
// processing runs land a consistent set rather than appending.
func (r *DocumentRepo) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk) error {
	records := make([]chunkModel, 0, len(chunks))
	for _, chunk := range chunks {
		records = append(records, chunkToModel(chunk))
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&chunkModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear existing chunks: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&records, 100).Error; err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace document chunks: %w", err)
	}
	return nil
}

// Delete removes a document and, through the cascade, its chunks.
func (r *DocumentRepo) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&documentModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFound("document", id.String())
	}
	return nil
}

// chunkRow carries one similarity search result row.
type chunkRow struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	OwnerID      string
	Ordinal      int
	Content      string
	TokenCount   int
	PageEstimate *int
	CreatedAt    time.Time
	Similarity   float64
}

// SearchChunks returns the owner's chunks whose cosine similarity to
// embedding exceeds threshold, best first.
func (r *DocumentRepo) SearchChunks(ctx context.Context, ownerID string, embedding []float32, topK int, threshold float64, filter types.ChunkFilter) ([]types.RetrievedChunk, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	conditions := "owner_id = $2 AND embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $3"
	args := []any{pgvector.NewVector(embedding), ownerID, threshold}
	argIndex := 4

	if len(filter.DocumentIDs) > 0 {
		placeholders := make([]string, 0, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argIndex))
			args = append(args, id)
			argIndex++
		}
		conditions += fmt.Sprintf(" AND document_id IN (%s)", strings.Join(placeholders, ", "))
	}

	query := fmt.Sprintf(`
		SELECT id, document_id, owner_id, ordinal, content, token_count, page_estimate, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM document_chunks
		WHERE %s
		ORDER BY similarity DESC
		LIMIT $%d`, conditions, argIndex)
	args = append(args, topK)

	var rows []chunkRow
	err := r.db.WithContext(ctx).
		Raw(query, args...).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}

	results := make([]types.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		results = append(results, types.RetrievedChunk{
			Chunk: types.Chunk{
				ID:           row.ID,
				DocumentID:   row.DocumentID,
				OwnerID:      row.OwnerID,
				Ordinal:      row.Ordinal,
				Content:      row.Content,
				TokenCount:   row.TokenCount,
				PageEstimate: row.PageEstimate,
				CreatedAt:    row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results, nil
}

// CountByOwner returns how many documents the owner has.
func (r *DocumentRepo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&documentModel{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// SumBytesByOwner returns the owner's total stored document bytes.
func (r *DocumentRepo) SumBytesByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&documentModel{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Where("owner_id = ?", ownerID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum document bytes: %w", err)
	}
	return total, nil
}

// CountUploadsSince counts documents the owner created at or after the
// given instant, regardless of processing outcome.
func (r *DocumentRepo) CountUploadsSince(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&documentModel{}).
		Where("owner_id = ? AND created_at >= ?", ownerID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recent uploads: %w", err)
	}
	return count, nil
}

// CountChunksByOwner returns how many chunks the owner has.
func (r *DocumentRepo) CountChunksByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chunkModel{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// ListChunksByOwner returns the owner's chunks with their stored
// vectors, in document and ordinal order, for rebuilding an in-process
// index.
func (r *DocumentRepo) ListChunksByOwner(ctx context.Context, ownerID string, limit, offset int) ([]types.Chunk, error) {
	var records []chunkModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("document_id ASC, ordinal ASC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	chunks := make([]types.Chunk, 0, len(records))
	for _, record := range records {
		chunk := types.Chunk{
			ID:           record.ID,
			DocumentID:   record.DocumentID,
			OwnerID:      record.OwnerID,
			Ordinal:      record.Ordinal,
			Content:      record.Content,
			TokenCount:   record.TokenCount,
			PageEstimate: record.PageEstimate,
			CreatedAt:    record.CreatedAt,
		}
		if record.Embedding != nil {
			chunk.Embedding = record.Embedding.Slice()
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func documentToModel(doc *types.Document) (documentModel, error) {
	tags, err := marshalJSON(doc.Tags)
	if err != nil {
		return documentModel{}, fmt.Errorf("failed to encode document tags: %w", err)
	}
	return documentModel{
		ID:            doc.ID,
		OwnerID:       doc.OwnerID,
		Title:         doc.Title,
		SourceName:    doc.SourceName,
		MIMEType:      doc.MIMEType,
		SizeBytes:     doc.SizeBytes,
		PageCount:     doc.PageCount,
		WordCount:     doc.WordCount,
		Language:      doc.Language,
		Tags:          tags,
		Status:        string(doc.Status),
		FailureReason: doc.FailureReason,
		ChunkCount:    doc.ChunkCount,
		CreatedAt:     doc.CreatedAt,
		ProcessedAt:   doc.ProcessedAt,
	}, nil
}

func documentFromModel(record documentModel) types.Document {
	var tags []string
	_ = unmarshalJSON(record.Tags, &tags)
	return types.Document{
		ID:            record.ID,
		OwnerID:       record.OwnerID,
		Title:         record.Title,
		SourceName:    record.SourceName,
		MIMEType:      record.MIMEType,
		SizeBytes:     record.SizeBytes,
		PageCount:     record.PageCount,
		WordCount:     record.WordCount,
		Language:      record.Language,
		Tags:          tags,
		Status:        types.DocumentStatus(record.Status),
		FailureReason: record.FailureReason,
		ChunkCount:    record.ChunkCount,
		CreatedAt:     record.CreatedAt,
		ProcessedAt:   record.ProcessedAt,
	}
}

func chunkToModel(chunk types.Chunk) chunkModel {
	var vector *pgvector.Vector
	if len(chunk.Embedding) > 0 {
		v := pgvector.NewVector(chunk.Embedding)
		vector = &v
	}
	return chunkModel{
		ID:           chunk.ID,
		DocumentID:   chunk.DocumentID,
		OwnerID:      chunk.OwnerID,
		Ordinal:      chunk.Ordinal,
		Content:      chunk.Content,
		TokenCount:   chunk.TokenCount,
		PageEstimate: chunk.PageEstimate,
		Embedding:    vector,
		CreatedAt:    chunk.CreatedAt,
	}
}
