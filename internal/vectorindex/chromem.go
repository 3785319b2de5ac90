package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/types"
)

// ChromemIndex is an in-process similarity index backed by chromem-go.
// It serves the operator CLI's local mode and tests; the hosted service
// uses pgvector instead. Every entry carries an explicit embedding, so
// collections are created without an embedding function and queries
// always go through QueryEmbedding.
type ChromemIndex struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

var (
	_ MemorySearcher = (*ChromemIndex)(nil)
	_ ChunkSearcher  = (*ChromemIndex)(nil)
)

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// AddMemory indexes one memory under its owner's collection.
func (x *ChromemIndex) AddMemory(ctx context.Context, mem types.Memory) error {
	if mem.OwnerID == "" {
		return errors.NewValidation("owner id is required")
	}
	if len(mem.Embedding) == 0 {
		return errors.NewValidation("memory %s has no embedding", mem.ID)
	}
	col, err := x.collection(memoryCollection(mem.OwnerID))
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        mem.ID.String(),
		Content:   mem.Content,
		Embedding: mem.Embedding,
		Metadata:  memoryMetadata(mem),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index memory %s: %w", mem.ID, err)
	}
	return nil
}

// AddChunk indexes one document chunk under its owner's collection.
func (x *ChromemIndex) AddChunk(ctx context.Context, chunk types.Chunk) error {
	if chunk.OwnerID == "" {
		return errors.NewValidation("owner id is required")
	}
	if len(chunk.Embedding) == 0 {
		return errors.NewValidation("chunk %s has no embedding", chunk.ID)
	}
	col, err := x.collection(chunkCollection(chunk.OwnerID))
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        chunk.ID.String(),
		Content:   chunk.Content,
		Embedding: chunk.Embedding,
		Metadata:  chunkMetadata(chunk),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// SearchSimilar returns the owner's memories nearest to embedding in
// descending similarity order. Type filtering is pushed into chromem's
// metadata match; the importance floor and threshold are applied after
// the query, so heavily filtered searches can return fewer than topK
// results even when more matches exist.
func (x *ChromemIndex) SearchSimilar(ctx context.Context, ownerID string, embedding []float32, topK int, threshold float64, filter types.MemoryFilter) ([]types.RetrievedMemory, error) {
	results, err := x.query(ctx, memoryCollection(ownerID), embedding, topK, typeWhere(filter.Type))
	if err != nil || len(results) == 0 {
		return nil, err
	}
	memories := make([]types.RetrievedMemory, 0, len(results))
	for _, result := range results {
		if float64(result.Similarity) < threshold {
			continue
		}
		mem, err := memoryFromResult(result)
		if err != nil {
			slog.Warn("skipping unreadable memory index entry", "id", result.ID, "error", err)
			continue
		}
		if mem.Importance < filter.MinImportance {
			continue
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// SearchChunks returns the owner's chunks nearest to embedding in
// descending similarity order. A multi-document scope is filtered after
// the query; chromem metadata matches are single-valued.
func (x *ChromemIndex) SearchChunks(ctx context.Context, ownerID string, embedding []float32, topK int, threshold float64, filter types.ChunkFilter) ([]types.RetrievedChunk, error) {
	var where map[string]string
	if len(filter.DocumentIDs) == 1 {
		where = map[string]string{"document_id": filter.DocumentIDs[0].String()}
	}
	results, err := x.query(ctx, chunkCollection(ownerID), embedding, topK, where)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	scope := make(map[uuid.UUID]bool, len(filter.DocumentIDs))
	for _, id := range filter.DocumentIDs {
		scope[id] = true
	}
	chunks := make([]types.RetrievedChunk, 0, len(results))
	for _, result := range results {
		if float64(result.Similarity) < threshold {
			continue
		}
		chunk, err := chunkFromResult(result)
		if err != nil {
			slog.Warn("skipping unreadable chunk index entry", "id", result.ID, "error", err)
			continue
		}
		if len(scope) > 0 && !scope[chunk.DocumentID] {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// CountMemories reports how many memories the owner has indexed.
func (x *ChromemIndex) CountMemories(ownerID string) int {
	return x.count(memoryCollection(ownerID))
}

// CountChunks reports how many chunks the owner has indexed.
func (x *ChromemIndex) CountChunks(ownerID string) int {
	return x.count(chunkCollection(ownerID))
}

// query runs a clamped QueryEmbedding against the named collection.
// chromem rejects nResults above the collection size; collections never
// shrink (chromem has no delete), so clamping to Count is race-free.
func (x *ChromemIndex) query(ctx context.Context, name string, embedding []float32, topK int, where map[string]string) ([]chromem.Result, error) {
	if len(embedding) == 0 {
		return nil, errors.NewValidation("query vector is empty")
	}
	if topK <= 0 {
		return nil, errors.NewValidation("max results must be positive, got %d", topK)
	}
	x.mu.RLock()
	col, ok := x.collections[name]
	x.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	results, err := col.QueryEmbedding(ctx, embedding, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	return results, nil
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[name]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[name]; ok {
		return col, nil
	}
	col, err := x.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	x.collections[name] = col
	return col, nil
}

func (x *ChromemIndex) count(name string) int {
	x.mu.RLock()
	col, ok := x.collections[name]
	x.mu.RUnlock()
	if !ok {
		return 0
	}
	return col.Count()
}

func memoryCollection(ownerID string) string { return "memories-" + ownerID }
func chunkCollection(ownerID string) string  { return "chunks-" + ownerID }

func typeWhere(memoryType string) map[string]string {
	if memoryType == "" {
		return nil
	}
	return map[string]string{"type": memoryType}
}

// memoryMetadata flattens a memory into chromem's string-only metadata.
func memoryMetadata(mem types.Memory) map[string]string {
	metadata := map[string]string{
		"owner_id":     mem.OwnerID,
		"type":         mem.Type,
		"category":     mem.Category,
		"importance":   strconv.FormatFloat(mem.Importance, 'f', -1, 64),
		"access_count": strconv.Itoa(mem.AccessCount),
		"created_at":   mem.CreatedAt.Format(time.RFC3339),
		"updated_at":   mem.UpdatedAt.Format(time.RFC3339),
	}
	if mem.Context != "" {
		metadata["context"] = mem.Context
	}
	if mem.SourceConversationID != "" {
		metadata["source_conversation_id"] = mem.SourceConversationID
	}
	if mem.LastAccessedAt != nil {
		metadata["last_accessed_at"] = mem.LastAccessedAt.Format(time.RFC3339)
	}
	if len(mem.Tags) > 0 {
		if tags, err := json.Marshal(mem.Tags); err == nil {
			metadata["tags"] = string(tags)
		}
	}
	return metadata
}

func memoryFromResult(result chromem.Result) (types.RetrievedMemory, error) {
	id, err := uuid.Parse(result.ID)
	if err != nil {
		return types.RetrievedMemory{}, fmt.Errorf("bad memory id %q: %w", result.ID, err)
	}
	importance, err := strconv.ParseFloat(result.Metadata["importance"], 64)
	if err != nil {
		return types.RetrievedMemory{}, fmt.Errorf("bad importance: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, result.Metadata["created_at"])
	if err != nil {
		return types.RetrievedMemory{}, fmt.Errorf("bad created_at: %w", err)
	}
	mem := types.Memory{
		ID:                   id,
		OwnerID:              result.Metadata["owner_id"],
		Content:              result.Content,
		Type:                 result.Metadata["type"],
		Category:             result.Metadata["category"],
		Context:              result.Metadata["context"],
		SourceConversationID: result.Metadata["source_conversation_id"],
		Importance:           importance,
		Embedding:            result.Embedding,
		CreatedAt:            createdAt,
	}
	if raw := result.Metadata["access_count"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			mem.AccessCount = n
		}
	}
	if raw := result.Metadata["updated_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			mem.UpdatedAt = t
		}
	}
	if raw := result.Metadata["last_accessed_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			mem.LastAccessedAt = &t
		}
	}
	if raw := result.Metadata["tags"]; raw != "" {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			mem.Tags = tags
		}
	}
	return types.RetrievedMemory{Memory: mem, Similarity: float64(result.Similarity)}, nil
}

func chunkMetadata(chunk types.Chunk) map[string]string {
	metadata := map[string]string{
		"owner_id":    chunk.OwnerID,
		"document_id": chunk.DocumentID.String(),
		"ordinal":     strconv.Itoa(chunk.Ordinal),
		"token_count": strconv.Itoa(chunk.TokenCount),
		"created_at":  chunk.CreatedAt.Format(time.RFC3339),
	}
	if chunk.PageEstimate != nil {
		metadata["page_estimate"] = strconv.Itoa(*chunk.PageEstimate)
	}
	return metadata
}

func chunkFromResult(result chromem.Result) (types.RetrievedChunk, error) {
	id, err := uuid.Parse(result.ID)
	if err != nil {
		return types.RetrievedChunk{}, fmt.Errorf("bad chunk id %q: %w", result.ID, err)
	}
	documentID, err := uuid.Parse(result.Metadata["document_id"])
	if err != nil {
		return types.RetrievedChunk{}, fmt.Errorf("bad document id: %w", err)
	}
	ordinal, err := strconv.Atoi(result.Metadata["ordinal"])
	if err != nil {
		return types.RetrievedChunk{}, fmt.Errorf("bad ordinal: %w", err)
	}
	chunk := types.Chunk{
		ID:         id,
		DocumentID: documentID,
		OwnerID:    result.Metadata["owner_id"],
		Ordinal:    ordinal,
		Content:    result.Content,
		Embedding:  result.Embedding,
	}
	if raw := result.Metadata["token_count"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			chunk.TokenCount = n
		}
	}
	if raw := result.Metadata["page_estimate"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			chunk.PageEstimate = &n
		}
	}
	if raw := result.Metadata["created_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			chunk.CreatedAt = t
		}
	}
	return types.RetrievedChunk{Chunk: chunk, Similarity: float64(result.Similarity)}, nil
}
