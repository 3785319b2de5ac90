package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/givelift/recall/internal/types"
)

// MemoryService is the slice of the memory service the handlers use.
type MemoryService interface {
	Create(ctx context.Context, apiKey, ownerID string, candidate types.MemoryCandidate, conversationID string) (*types.Memory, error)
	List(ctx context.Context, ownerID, category string, limit, offset int) ([]types.Memory, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// MemorySearcher runs ranked similarity searches for the management
// surface, with real errors rather than injection's silent degrade.
type MemorySearcher interface {
	Search(ctx context.Context, apiKey, ownerID, query string, count int, filter types.MemoryFilter) ([]types.RetrievedMemory, error)
}

type MemoryHandler struct {
	memories MemoryService
	searcher MemorySearcher
}

func NewMemoryHandler(memories MemoryService, searcher MemorySearcher) *MemoryHandler {
	return &MemoryHandler{memories: memories, searcher: searcher}
}

type createMemoryRequest struct {
	Content        string   `json:"content" validate:"required"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Context        string   `json:"context"`
	Importance     float64  `json:"importance" validate:"gte=0,lte=1"`
	ConversationID string   `json:"conversation_id"`
}

// HandleCreate stores one explicit memory.
func (h *MemoryHandler) HandleCreate(c *fiber.Ctx) error {
	var req createMemoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	mem, err := h.memories.Create(c.UserContext(), providerKey(c), ownerID(c), types.MemoryCandidate{
		Content:    req.Content,
		Category:   req.Category,
		Tags:       req.Tags,
		Context:    req.Context,
		Importance: req.Importance,
		Type:       types.MemoryTypeExplicit,
	}, req.ConversationID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(mem)
}

func (h *MemoryHandler) HandleList(c *fiber.Ctx) error {
	memories, err := h.memories.List(c.UserContext(), ownerID(c), c.Query("category"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	if memories == nil {
		memories = []types.Memory{}
	}
	return c.JSON(fiber.Map{"memories": memories})
}

type searchMemoriesRequest struct {
	Query         string  `json:"query" validate:"required"`
	Limit         int     `json:"limit" validate:"gte=0,lte=50"`
	Type          string  `json:"type" validate:"omitempty,oneof=explicit auto"`
	MinImportance float64 `json:"min_importance" validate:"gte=0,lte=1"`
}

// HandleSearch runs a ranked similarity search over the owner's
// memories. Unlike /retrieve it surfaces failures to the caller.
func (h *MemoryHandler) HandleSearch(c *fiber.Ctx) error {
	var req searchMemoriesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	memories, err := h.searcher.Search(c.UserContext(), providerKey(c), ownerID(c), req.Query, req.Limit, types.MemoryFilter{
		Type:          req.Type,
		MinImportance: req.MinImportance,
	})
	if err != nil {
		return err
	}
	if memories == nil {
		memories = []types.RetrievedMemory{}
	}
	return c.JSON(fiber.Map{"memories": memories})
}

func (h *MemoryHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.memories.Delete(c.UserContext(), ownerID(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
