// Package memory manages the durable per-user memory lifecycle: creation
// behind capacity and duplicate guards, importance scoring, access
// bookkeeping off the request path, and pruning.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/scoring"
	"github.com/givelift/recall/internal/types"
)

// Store is the persistence surface the service drives.
type Store interface {
	Add(ctx context.Context, mem *types.Memory) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Memory, error)
	List(ctx context.Context, ownerID, category string, limit, offset int) ([]types.Memory, error)
	ListPage(ctx context.Context, limit, offset int) ([]types.Memory, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	IncrementAccess(ctx context.Context, ids []uuid.UUID, accessedAt time.Time) error
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	PruneExcess(ctx context.Context, ownerID string, keep int) (int64, error)
}

// Embedder turns memory content into a vector before storage.
type Embedder interface {
	EmbedDocument(ctx context.Context, apiKey, text string) ([]float32, error)
}

// DuplicateChecker reports whether a near-duplicate of the given vector
// is already stored for the owner.
type DuplicateChecker interface {
	Exists(ctx context.Context, ownerID string, embedding []float32) (bool, error)
}

// CandidateSource mines memory candidates out of a conversation.
type CandidateSource interface {
	ExtractAll(ctx context.Context, apiKey string, turns []types.Turn) []types.MemoryCandidate
}

// Tasks runs fire-and-forget work off the request path.
type Tasks interface {
	Go(name string, task func(ctx context.Context) error) bool
}

// Options bound the service's write paths.
type Options struct {
	// Cap is the per-owner memory ceiling; 0 disables it.
	Cap int
	// MaxContentLength bounds content in runes; 0 disables it.
	MaxContentLength int
	// ListLimit is the default page size for List.
	ListLimit int
	// SweepPageSize is the scan batch size for SweepStale.
	SweepPageSize int
}

// Service owns memory writes and the pruning policy. Reads used by
// retrieval go straight to the store; everything that mutates comes
// through here.
type Service struct {
	store     Store
	embedder  Embedder
	extractor CandidateSource
	tasks     Tasks
	dedup     DuplicateChecker
	scorer    scoring.Config
	opts      Options
	now       func() time.Time
}

func NewService(store Store, embedder Embedder, extractor CandidateSource, tasks Tasks, scorer scoring.Config, opts Options) *Service {
	if opts.ListLimit <= 0 {
		opts.ListLimit = 50
	}
	if opts.SweepPageSize <= 0 {
		opts.SweepPageSize = 500
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		tasks:     tasks,
		scorer:    scorer,
		opts:      opts,
		now:       time.Now,
	}
}

// SetDuplicateChecker wires the near-duplicate probe after construction.
// Create skips the duplicate check until it is set.
func (s *Service) SetDuplicateChecker(checker DuplicateChecker) {
	s.dedup = checker
}

// Create validates, scores, embeds, and stores one memory. It returns
// the stored record, a capacity error when the owner is at cap, or a
// duplicate error when a near-identical memory is already stored.
func (s *Service) Create(ctx context.Context, apiKey, ownerID string, candidate types.MemoryCandidate, conversationID string) (*types.Memory, error) {
	if ownerID == "" {
		return nil, errors.NewValidation("owner id is required")
	}
	content := strings.TrimSpace(candidate.Content)
	if content == "" {
		return nil, errors.NewValidation("memory content is required")
	}
	if s.opts.MaxContentLength > 0 && len([]rune(content)) > s.opts.MaxContentLength {
		return nil, errors.NewValidation("memory content exceeds %d characters", s.opts.MaxContentLength)
	}

	if s.opts.Cap > 0 {
		count, err := s.store.CountByOwner(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to count memories for %s: %w", ownerID, err)
		}
		if count >= int64(s.opts.Cap) {
			return nil, errors.NewCapacityExceeded(s.opts.Cap)
		}
	}

	embedding, err := s.embedder.EmbedDocument(ctx, apiKey, content)
	if err != nil {
		return nil, err
	}

	if s.dedup != nil {
		exists, err := s.dedup.Exists(ctx, ownerID, embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to probe for duplicates: %w", err)
		}
		if exists {
			return nil, errors.NewDuplicate("a near-duplicate memory is already stored")
		}
	}

	category := types.NormalizeCategory(candidate.Category)
	base := candidate.Importance
	if base <= 0 {
		base = s.scorer.BaseImportance(content, category)
	}

	now := s.now()
	mem := &types.Memory{
		ID:                   uuid.New(),
		OwnerID:              ownerID,
		Content:              content,
		Type:                 normalizeType(candidate.Type),
		Category:             category,
		Tags:                 candidate.Tags,
		Context:              strings.TrimSpace(candidate.Context),
		SourceConversationID: conversationID,
		Importance:           s.scorer.FinalImportance(base, candidate.Tags),
		Embedding:            embedding,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.store.Add(ctx, mem); err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}
	slog.Debug("stored memory",
		"owner_id", ownerID,
		"memory_id", mem.ID,
		"type", mem.Type,
		"category", mem.Category,
		"importance", mem.Importance)
	return mem, nil
}

// Get returns one memory by id.
func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Memory, error) {
	if ownerID == "" {
		return nil, errors.NewValidation("owner id is required")
	}
	return s.store.Get(ctx, ownerID, id)
}

// List returns an owner's memories, newest first, optionally narrowed
// to one category.
func (s *Service) List(ctx context.Context, ownerID, category string, limit, offset int) ([]types.Memory, error) {
	if ownerID == "" {
		return nil, errors.NewValidation("owner id is required")
	}
	if limit <= 0 {
		limit = s.opts.ListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, ownerID, category, limit, offset)
}

// Delete removes one memory by id.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if ownerID == "" {
		return errors.NewValidation("owner id is required")
	}
	return s.store.Delete(ctx, ownerID, id)
}

// Prune trims an owner down to keep memories, dropping the lowest value
// ones first. keep < 0 means the configured cap.
func (s *Service) Prune(ctx context.Context, ownerID string, keep int) (int64, error) {
	if ownerID == "" {
		return 0, errors.NewValidation("owner id is required")
	}
	if keep < 0 {
		keep = s.opts.Cap
	}
	deleted, err := s.store.PruneExcess(ctx, ownerID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune memories for %s: %w", ownerID, err)
	}
	if deleted > 0 {
		slog.Info("pruned excess memories", "owner_id", ownerID, "kept", keep, "deleted", deleted)
	}
	return deleted, nil
}

// SweepStale scans all stored memories and deletes the ones the pruning
// policy has written off: low value past the minimum age, or middling
// value and long idle. Protected memories are never touched.
func (s *Service) SweepStale(ctx context.Context) (int64, error) {
	now := s.now()
	var deleted int64
	offset := 0
	for {
		page, err := s.store.ListPage(ctx, s.opts.SweepPageSize, offset)
		if err != nil {
			return deleted, fmt.Errorf("failed to scan memories: %w", err)
		}
		if len(page) == 0 {
			break
		}
		var victims []uuid.UUID
		for _, mem := range page {
			if s.isStale(mem, now) {
				victims = append(victims, mem.ID)
			}
		}
		var removed int64
		if len(victims) > 0 {
			removed, err = s.store.DeleteByIDs(ctx, victims)
			if err != nil {
				return deleted, fmt.Errorf("failed to delete stale memories: %w", err)
			}
			deleted += removed
		}
		// Deletions shift later rows left within the creation-order scan.
		offset += len(page) - int(removed)
		if len(page) < s.opts.SweepPageSize {
			break
		}
	}
	if deleted > 0 {
		slog.Info("swept stale memories", "deleted", deleted)
	}
	return deleted, nil
}

func (s *Service) isStale(mem types.Memory, now time.Time) bool {
	ageDays := now.Sub(mem.CreatedAt).Hours() / 24
	idleDays := ageDays
	if mem.LastAccessedAt != nil {
		idleDays = now.Sub(*mem.LastAccessedAt).Hours() / 24
	}
	return s.scorer.ShouldPrune(mem.Importance, mem.AccessCount, ageDays, idleDays)
}

// RecordAccess bumps access counters for served memories off the request
// path. Failures are logged by the task runner and never surface here.
func (s *Service) RecordAccess(ownerID string, ids []uuid.UUID) {
	if len(ids) == 0 || s.tasks == nil {
		return
	}
	accessedAt := s.now()
	s.tasks.Go("memory-access", func(ctx context.Context) error {
		if err := s.store.IncrementAccess(ctx, ids, accessedAt); err != nil {
			return fmt.Errorf("failed to record access for %s: %w", ownerID, err)
		}
		return nil
	})
}

// CaptureFromConversation mines a finished conversation for memories and
// stores what it finds. Duplicates are skipped quietly; when the owner
// is at cap, the lowest value memory is evicted to admit the new one.
// Returns the number actually stored.
func (s *Service) CaptureFromConversation(ctx context.Context, apiKey, ownerID, conversationID string, turns []types.Turn) (int, error) {
	if ownerID == "" {
		return 0, errors.NewValidation("owner id is required")
	}
	candidates := s.extractor.ExtractAll(ctx, apiKey, turns)
	created := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if s.storeCandidate(ctx, apiKey, ownerID, conversationID, candidate) {
			created++
		}
	}
	if created > 0 {
		slog.Info("captured memories from conversation",
			"owner_id", ownerID,
			"conversation_id", conversationID,
			"stored", created,
			"candidates", len(candidates))
	}
	return created, nil
}

func (s *Service) storeCandidate(ctx context.Context, apiKey, ownerID, conversationID string, candidate types.MemoryCandidate) bool {
	_, err := s.Create(ctx, apiKey, ownerID, candidate, conversationID)
	if errors.Is(err, errors.ErrCapacityExceeded) && s.makeRoom(ctx, ownerID) {
		_, err = s.Create(ctx, apiKey, ownerID, candidate, conversationID)
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, errors.ErrDuplicate):
		slog.Debug("skipped near-duplicate memory", "owner_id", ownerID)
	default:
		slog.Warn("failed to store extracted memory", "owner_id", ownerID, "error", err)
	}
	return false
}

// makeRoom evicts the lowest value memory so one insert can proceed.
func (s *Service) makeRoom(ctx context.Context, ownerID string) bool {
	if s.opts.Cap <= 0 {
		return false
	}
	deleted, err := s.store.PruneExcess(ctx, ownerID, s.opts.Cap-1)
	if err != nil {
		slog.Warn("failed to make room for memory", "owner_id", ownerID, "error", err)
		return false
	}
	return deleted > 0
}

func normalizeType(memoryType string) string {
	if memoryType == types.MemoryTypeAuto {
		return types.MemoryTypeAuto
	}
	return types.MemoryTypeExplicit
}
