// Package retrieval decides what stored knowledge reaches a chat
// request's context, under a wall-clock budget that keeps retrieval
// from ever delaying the streaming response it feeds.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/scoring"
	"github.com/givelift/recall/internal/types"
)

// Embedder is the slice of the embedding client the orchestrator uses.
type Embedder interface {
	EmbedQuery(ctx context.Context, apiKey, text string) ([]float32, error)
}

// Searcher is the gateway seam for memory similarity queries.
type Searcher interface {
	SearchMemories(ctx context.Context, ownerID string, queryVector []float32, maxResults int, threshold float64, filter types.MemoryFilter) ([]types.RetrievedMemory, error)
}

// AccessRecorder notes that memories were served. Implementations run
// the bookkeeping in the background and never block or fail the caller.
type AccessRecorder interface {
	RecordAccess(ownerID string, ids []uuid.UUID)
}

// Options tune the injection pipeline.
type Options struct {
	// TopK is the default result count when the caller passes none.
	TopK int
	// SimilarityThreshold gates retrieval matches.
	SimilarityThreshold float64
	// DedupThreshold gates Exists probes; stricter than retrieval.
	DedupThreshold float64
	// Timeout caps the whole embed-search-score pipeline.
	Timeout time.Duration
}

// Injection is retrieval's contribution to one chat request: the ranked
// memories and the prompt block rendering them. Both are empty when
// nothing qualified or the budget ran out.
type Injection struct {
	Memories []types.RetrievedMemory
	Block    string
}

// pipeline stages, reported when a run dies so logs show how far it got.
type stage int32

const (
	stageIdle stage = iota
	stageEmbedding
	stageSearching
	stageScoring
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageEmbedding:
		return "embedding"
	case stageSearching:
		return "searching"
	case stageScoring:
		return "scoring"
	case stageDone:
		return "done"
	default:
		return "idle"
	}
}

// Orchestrator runs the retrieval pipeline and the dedup probe.
type Orchestrator struct {
	embedder Embedder
	searcher Searcher
	recorder AccessRecorder
	scorer   scoring.Config
	opts     Options
	now      func() time.Time
}

func NewOrchestrator(embedder Embedder, searcher Searcher, recorder AccessRecorder, scorer scoring.Config, opts Options) *Orchestrator {
	return &Orchestrator{
		embedder: embedder,
		searcher: searcher,
		recorder: recorder,
		scorer:   scorer,
		opts:     opts,
		now:      time.Now,
	}
}

// InjectRelevant races the embed, search, and score pipeline against the
// configured timeout. It never returns an error: timeouts, cancellations, and
// provider failures all degrade to an empty injection with a warn log,
// because retrieval is an enhancement of the chat path, not a
// dependency. A completed pipeline left racing in the background has
// its result dropped.
func (o *Orchestrator) InjectRelevant(ctx context.Context, apiKey, ownerID, query string, count int, minImportance float64) Injection {
	if apiKey == "" {
		// No provider credential for this request; injection is skipped
		// entirely rather than spent against platform credentials.
		return Injection{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Injection{}
	}
	if count <= 0 {
		count = o.opts.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	var current atomic.Int32
	resultCh := make(chan []types.RetrievedMemory, 1)
	errCh := make(chan error, 1)
	start := time.Now()

	go func() {
		memories, err := o.pipeline(ctx, apiKey, ownerID, query, count, types.MemoryFilter{MinImportance: minImportance}, &current)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- memories
	}()

	select {
	case memories := <-resultCh:
		if len(memories) == 0 {
			return Injection{}
		}
		o.noteServed(ownerID, memories)
		return Injection{Memories: memories, Block: BuildMemoryBlock(memories)}
	case err := <-errCh:
		slog.Warn("memory retrieval failed, continuing without memories",
			"owner_id", ownerID,
			"stage", stage(current.Load()).String(),
			"error", err,
		)
		return Injection{}
	case <-ctx.Done():
		slog.Warn("memory retrieval ran out of budget, continuing without memories",
			"owner_id", ownerID,
			"stage", stage(current.Load()).String(),
			"elapsed", time.Since(start),
		)
		return Injection{}
	}
}

// Search runs the embed-search-score pipeline to completion, without
// the injection budget. Management surfaces use it when the caller
// asked for a search and deserves a real error.
func (o *Orchestrator) Search(ctx context.Context, apiKey, ownerID, query string, count int, filter types.MemoryFilter) ([]types.RetrievedMemory, error) {
	if apiKey == "" {
		return nil, errors.NewValidation("an embedding credential is required to search")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidation("query must not be empty")
	}
	if count <= 0 {
		count = o.opts.TopK
	}
	var current atomic.Int32
	return o.pipeline(ctx, apiKey, ownerID, query, count, filter, &current)
}

func (o *Orchestrator) pipeline(ctx context.Context, apiKey, ownerID, query string, count int, filter types.MemoryFilter, current *atomic.Int32) ([]types.RetrievedMemory, error) {
	current.Store(int32(stageEmbedding))
	vector, err := o.embedder.EmbedQuery(ctx, apiKey, query)
	if err != nil {
		return nil, err
	}

	current.Store(int32(stageSearching))
	memories, err := o.searcher.SearchMemories(ctx, ownerID, vector, count, o.opts.SimilarityThreshold, filter)
	if err != nil {
		return nil, err
	}

	current.Store(int32(stageScoring))
	now := o.now()
	for i := range memories {
		mem := &memories[i]
		standing := o.scorer.CurrentImportance(mem.Importance, mem.AccessCount, mem.LastAccessedAt, mem.CreatedAt, now)
		mem.Relevance = o.scorer.Relevance(mem.Similarity, standing)
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Relevance > memories[j].Relevance
	})

	current.Store(int32(stageDone))
	return memories, nil
}

// Exists reports whether the owner already holds a near-duplicate of
// the given embedding, probing at the dedup threshold.
func (o *Orchestrator) Exists(ctx context.Context, ownerID string, embedding []float32) (bool, error) {
	matches, err := o.searcher.SearchMemories(ctx, ownerID, embedding, 1, o.opts.DedupThreshold, types.MemoryFilter{})
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

func (o *Orchestrator) noteServed(ownerID string, memories []types.RetrievedMemory) {
	if o.recorder == nil {
		return
	}
	ids := make([]uuid.UUID, 0, len(memories))
	for _, mem := range memories {
		ids = append(ids, mem.ID)
	}
	o.recorder.RecordAccess(ownerID, ids)
}
