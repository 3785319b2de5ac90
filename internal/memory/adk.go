package memory

import (
	"context"
	"strings"

	adkmemory "google.golang.org/adk/memory"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/givelift/recall/internal/retrieval"
	"github.com/givelift/recall/internal/types"
	"github.com/givelift/recall/internal/utils"
)

// Retriever ranks stored memories against a query.
type Retriever interface {
	InjectRelevant(ctx context.Context, apiKey, ownerID, query string, count int, minImportance float64) retrieval.Injection
}

// AgentMemory exposes the engine to ADK agents as their memory service.
// Handed-over sessions are mined for durable memories, and searches run
// through the same scored retrieval used for prompt injection. It runs
// on a platform credential rather than a per-request one.
type AgentMemory struct {
	service   *Service
	retriever Retriever
	apiKey    string
	topK      int
}

func NewAgentMemory(service *Service, retriever Retriever, apiKey string, topK int) *AgentMemory {
	return &AgentMemory{
		service:   service,
		retriever: retriever,
		apiKey:    apiKey,
		topK:      topK,
	}
}

var _ adkmemory.Service = (*AgentMemory)(nil)

// AddSession mines a completed session's transcript for memories.
func (a *AgentMemory) AddSession(ctx context.Context, sess session.Session) error {
	events := sess.Events()
	turns := make([]types.Turn, 0, events.Len())
	for i := 0; i < events.Len(); i++ {
		event := events.At(i)
		if event == nil || event.Content == nil {
			continue
		}
		text := strings.TrimSpace(utils.ExtractContentText(event.Content))
		if text == "" {
			continue
		}
		role := "assistant"
		if event.Author == "user" {
			role = "user"
		}
		turns = append(turns, types.Turn{Role: role, Content: text})
	}
	if len(turns) == 0 {
		return nil
	}
	_, err := a.service.CaptureFromConversation(ctx, a.apiKey, sess.UserID(), sess.ID(), turns)
	return err
}

// Search returns the memories most relevant to the query, best first.
func (a *AgentMemory) Search(ctx context.Context, req *adkmemory.SearchRequest) (*adkmemory.SearchResponse, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return &adkmemory.SearchResponse{}, nil
	}
	injection := a.retriever.InjectRelevant(ctx, a.apiKey, req.UserID, req.Query, a.topK, 0)
	return &adkmemory.SearchResponse{Memories: toEntries(injection.Memories)}, nil
}

func toEntries(memories []types.RetrievedMemory) []adkmemory.Entry {
	if len(memories) == 0 {
		return nil
	}
	entries := make([]adkmemory.Entry, 0, len(memories))
	for _, mem := range memories {
		entries = append(entries, adkmemory.Entry{
			Content:   genai.NewContentFromText(mem.Content, genai.RoleUser),
			Author:    mem.Category,
			Timestamp: mem.CreatedAt,
		})
	}
	return entries
}
