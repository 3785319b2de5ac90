package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

const (
	// DocumentUploading means the raw file is received but not yet processed.
	DocumentUploading DocumentStatus = "uploading"
	// DocumentProcessing means text extraction/chunking/embedding is underway.
	DocumentProcessing DocumentStatus = "processing"
	// DocumentReady is the successful terminal state.
	DocumentReady DocumentStatus = "ready"
	// DocumentFailed is the failed terminal state; FailureReason is set.
	DocumentFailed DocumentStatus = "failed"
)

// Document is an uploaded source file and its processing state.
type Document struct {
	ID         uuid.UUID      `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Title      string         `json:"title"`
	SourceName string         `json:"source_name"`
	MIMEType   string         `json:"mime_type"`
	SizeBytes  int64          `json:"size_bytes"`
	PageCount  *int           `json:"page_count,omitempty"`
	WordCount  *int           `json:"word_count,omitempty"`
	// Language is the detected ISO 639-1 code, empty when undetectable.
	Language      string         `json:"language,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Status        DocumentStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	CreatedAt     time.Time      `json:"created_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// Chunk is a contiguous token window of a document's extracted text.
// Ordinals are 0-based and contiguous within a document; windows may overlap
// in source text but never share an ordinal.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	Ordinal    int       `json:"ordinal"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	// PageEstimate is a linear-interpolation heuristic, advisory only.
	PageEstimate *int      `json:"page_estimate,omitempty"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	// MemoryTypeExplicit marks memories from a direct "remember this" command.
	MemoryTypeExplicit = "explicit"
	// MemoryTypeAuto marks memories mined from conversation by a model.
	MemoryTypeAuto = "auto"
)

// Memory categories used by the importance model.
const (
	CategoryIdentity     = "identity"
	CategoryGoal         = "goal"
	CategoryDonor        = "donor"
	CategoryPreference   = "preference"
	CategoryOrganization = "organization"
	CategoryEvent        = "event"
	CategoryOther        = "other"
)

// Memory is a durable fact about a user, independent of any document.
type Memory struct {
	ID       uuid.UUID `json:"id"`
	OwnerID  string    `json:"owner_id"`
	Content  string    `json:"content"`
	Type     string    `json:"type"`
	Category string    `json:"category"`
	Tags     []string  `json:"tags,omitempty"`
	// Context is free-text background recorded at extraction time.
	Context              string `json:"context,omitempty"`
	SourceConversationID string `json:"source_conversation_id,omitempty"`
	// Importance is clamped to [0,1] everywhere it is written.
	Importance     float64    `json:"importance"`
	Embedding      []float32  `json:"-"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// MemoryCandidate is an extracted, not-yet-persisted memory.
type MemoryCandidate struct {
	Content    string   `json:"content"`
	Importance float64  `json:"importance"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags,omitempty"`
	Context    string   `json:"context,omitempty"`
	Type       string   `json:"-"`
}

// Turn is one conversation turn as supplied by the chat handler.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RetrievedMemory is a memory scored against a query.
type RetrievedMemory struct {
	Memory
	Similarity float64 `json:"similarity"`
	// Relevance combines similarity with standing importance.
	Relevance float64 `json:"relevance"`
}

// RetrievedChunk is a document chunk scored against a query.
type RetrievedChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}

// StorageUsage is the per-owner storage aggregate.
type StorageUsage struct {
	DocumentCount int   `json:"document_count"`
	TotalBytes    int64 `json:"total_bytes"`
	ChunkCount    int   `json:"chunk_count"`
}

// MemoryFilter narrows a memory similarity search. Zero values mean no
// constraint.
type MemoryFilter struct {
	Type          string
	MinImportance float64
}

// ChunkFilter narrows a chunk similarity search. Zero values mean no
// constraint.
type ChunkFilter struct {
	DocumentIDs []uuid.UUID
}

// NormalizeCategory maps free-form category text onto the known set,
// falling back to CategoryOther.
func NormalizeCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case CategoryIdentity:
		return CategoryIdentity
	case CategoryGoal:
		return CategoryGoal
	case CategoryDonor:
		return CategoryDonor
	case CategoryPreference:
		return CategoryPreference
	case CategoryOrganization:
		return CategoryOrganization
	case CategoryEvent:
		return CategoryEvent
	default:
		return CategoryOther
	}
}
