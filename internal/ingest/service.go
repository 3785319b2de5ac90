// Package ingest runs uploads through the document pipeline: quota check,
// a document row in uploading state, then asynchronous text extraction,
// chunking, batch embedding, and the terminal ready or failed transition.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/givelift/recall/internal/chunker"
	"github.com/givelift/recall/internal/docproc"
	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/types"
)

// DocumentStore is the persistence surface the pipeline drives.
type DocumentStore interface {
	Create(ctx context.Context, doc *types.Document) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Document, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]types.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status types.DocumentStatus, failureReason string) error
	Finalize(ctx context.Context, doc *types.Document) error
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk) error
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// QuotaChecker guards uploads against the owner's plan limits.
type QuotaChecker interface {
	CheckUploadAllowed(ctx context.Context, ownerID string, sizeBytes int64) error
}

// TextExtractor turns an upload into plain text plus counts and language.
type TextExtractor interface {
	Process(ctx context.Context, mimeType, filename string, data []byte) (docproc.Extraction, error)
}

// Splitter cuts extracted text into token windows.
type Splitter interface {
	Chunk(text string, pageCount int) []chunker.Piece
}

// Embedder embeds chunk batches for indexing.
type Embedder interface {
	EmbedDocuments(ctx context.Context, apiKey string, texts []string) ([][]float32, error)
}

// Tasks runs the processing stage off the upload request.
type Tasks interface {
	Go(name string, task func(ctx context.Context) error) bool
}

// Options bound the read paths.
type Options struct {
	// ListLimit is the default page size for List.
	ListLimit int
}

// Service owns the document lifecycle from upload to terminal state.
type Service struct {
	docs      DocumentStore
	quota     QuotaChecker
	extractor TextExtractor
	splitter  Splitter
	embedder  Embedder
	tasks     Tasks
	opts      Options
	now       func() time.Time
}

func NewService(docs DocumentStore, quota QuotaChecker, extractor TextExtractor, splitter Splitter, embedder Embedder, tasks Tasks, opts Options) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = 50
	}
	return &Service{
		docs:      docs,
		quota:     quota,
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		tasks:     tasks,
		opts:      opts,
		now:       time.Now,
	}
}

// Upload describes one incoming file.
type Upload struct {
	OwnerID    string
	Title      string
	SourceName string
	MIMEType   string
	Data       []byte
	Tags       []string
	// APIKey is the caller's embedding credential for the processing run.
	APIKey string
}

// Accept validates the upload, checks quotas, persists the document in
// uploading state, and queues processing. The returned document is not
// yet searchable; its status advances asynchronously.
func (s *Service) Accept(ctx context.Context, up Upload) (*types.Document, error) {
	if up.OwnerID == "" {
		return nil, errors.NewValidation("owner id is required")
	}
	if len(up.Data) == 0 {
		return nil, errors.NewValidation("file is empty")
	}
	if !docproc.SupportedMIME(up.MIMEType, up.SourceName) {
		return nil, errors.NewValidation("unsupported file type %q", up.MIMEType)
	}
	if err := s.quota.CheckUploadAllowed(ctx, up.OwnerID, int64(len(up.Data))); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(up.Title)
	if title == "" {
		title = up.SourceName
	}
	doc := &types.Document{
		ID:         uuid.New(),
		OwnerID:    up.OwnerID,
		Title:      title,
		SourceName: up.SourceName,
		MIMEType:   up.MIMEType,
		SizeBytes:  int64(len(up.Data)),
		Tags:       up.Tags,
		Status:     types.DocumentUploading,
		CreatedAt:  s.now(),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	queued := s.tasks.Go("document-process", func(taskCtx context.Context) error {
		return s.process(taskCtx, doc.ID, up)
	})
	if !queued {
		s.fail(ctx, doc.ID, fmt.Errorf("processing queue is saturated"))
		doc.Status = types.DocumentFailed
		doc.FailureReason = "processing queue is saturated"
	}
	return doc, nil
}

// process is the asynchronous stage: extract, chunk, embed, land chunks,
// finalize. Any failure marks the document failed with the reason.
func (s *Service) process(ctx context.Context, docID uuid.UUID, up Upload) error {
	if err := s.docs.UpdateStatus(ctx, docID, types.DocumentProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	extraction, err := s.extractor.Process(ctx, up.MIMEType, up.SourceName, up.Data)
	if err != nil {
		s.fail(ctx, docID, err)
		return fmt.Errorf("failed to extract %s: %w", up.SourceName, err)
	}

	pageCount := 0
	if extraction.PageCount != nil {
		pageCount = *extraction.PageCount
	}
	pieces := s.splitter.Chunk(extraction.Text, pageCount)
	if len(pieces) == 0 {
		err := errors.NewValidation("no indexable content in %s", up.SourceName)
		s.fail(ctx, docID, err)
		return err
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, up.APIKey, texts)
	if err != nil {
		s.fail(ctx, docID, err)
		return fmt.Errorf("failed to embed %s: %w", up.SourceName, err)
	}

	now := s.now()
	chunks := make([]types.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = types.Chunk{
			ID:           uuid.New(),
			DocumentID:   docID,
			OwnerID:      up.OwnerID,
			Ordinal:      piece.Ordinal,
			Content:      piece.Content,
			TokenCount:   piece.TokenCount,
			PageEstimate: piece.PageEstimate,
			Embedding:    vectors[i],
			CreatedAt:    now,
		}
	}
	if err := s.docs.ReplaceChunks(ctx, docID, chunks); err != nil {
		s.fail(ctx, docID, err)
		return err
	}

	processedAt := s.now()
	wordCount := extraction.WordCount
	final := &types.Document{
		ID:          docID,
		ChunkCount:  len(chunks),
		WordCount:   &wordCount,
		PageCount:   extraction.PageCount,
		Language:    extraction.Language,
		ProcessedAt: &processedAt,
	}
	if err := s.docs.Finalize(ctx, final); err != nil {
		s.fail(ctx, docID, err)
		return err
	}

	slog.Info("document processed",
		"document_id", docID,
		"owner_id", up.OwnerID,
		"chunks", len(chunks),
		"words", extraction.WordCount,
		"language", extraction.Language)
	return nil
}

// fail marks the document failed. The mark must outlive a canceled
// pipeline context, so it runs on a detached deadline.
func (s *Service) fail(ctx context.Context, docID uuid.UUID, cause error) {
	reason := cause.Error()
	const maxReason = 500
	if len(reason) > maxReason {
		reason = reason[:maxReason]
	}
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.docs.UpdateStatus(markCtx, docID, types.DocumentFailed, reason); err != nil {
		slog.Error("failed to record document failure",
			"document_id", docID,
			"reason", reason,
			"error", err)
	}
}

// Get returns one document by id.
func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Document, error) {
	if ownerID == "" {
		return nil, errors.NewValidation("owner id is required")
	}
	return s.docs.Get(ctx, ownerID, id)
}

// List returns an owner's documents, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]types.Document, error) {
	if ownerID == "" {
		return nil, errors.NewValidation("owner id is required")
	}
	if limit <= 0 {
		limit = s.opts.ListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.List(ctx, ownerID, limit, offset)
}

// Delete removes a document and its chunks.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if ownerID == "" {
		return errors.NewValidation("owner id is required")
	}
	return s.docs.Delete(ctx, ownerID, id)
}
