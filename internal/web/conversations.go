package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/givelift/recall/internal/retrieval"
	"github.com/givelift/recall/internal/types"
)

// Injector is the chat-path retrieval surface.
type Injector interface {
	InjectRelevant(ctx context.Context, apiKey, ownerID, query string, count int, minImportance float64) retrieval.Injection
}

// Capturer mines durable memories out of a finished conversation.
type Capturer interface {
	CaptureFromConversation(ctx context.Context, apiKey, ownerID, conversationID string, turns []types.Turn) (int, error)
}

// Tasks runs capture off the request path.
type Tasks interface {
	Go(name string, task func(ctx context.Context) error) bool
}

type ConversationHandler struct {
	injector Injector
	capturer Capturer
	tasks    Tasks
}

func NewConversationHandler(injector Injector, capturer Capturer, tasks Tasks) *ConversationHandler {
	return &ConversationHandler{injector: injector, capturer: capturer, tasks: tasks}
}

type retrieveRequest struct {
	Query         string  `json:"query" validate:"required"`
	Count         int     `json:"count" validate:"gte=0,lte=50"`
	MinImportance float64 `json:"min_importance" validate:"gte=0,lte=1"`
}

type retrieveResponse struct {
	Block    string                  `json:"block"`
	Memories []types.RetrievedMemory `json:"memories"`
}

// HandleRetrieve returns the prompt block and ranked memories for a
// chat request. It always answers 200: a missing credential, a timeout,
// or a provider failure all come back as an empty injection because the
// chat path must not block on retrieval.
func (h *ConversationHandler) HandleRetrieve(c *fiber.Ctx) error {
	var req retrieveRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	injection := h.injector.InjectRelevant(c.UserContext(), providerKey(c), ownerID(c), req.Query, req.Count, req.MinImportance)
	resp := retrieveResponse{Block: injection.Block, Memories: injection.Memories}
	if resp.Memories == nil {
		resp.Memories = []types.RetrievedMemory{}
	}
	return c.JSON(resp)
}

type captureRequest struct {
	ConversationID string       `json:"conversation_id"`
	Turns          []types.Turn `json:"turns" validate:"required,min=1"`
}

// HandleCapture queues memory extraction for a conversation and answers
// 202. Extraction failures are logged, never reported back; the chat
// handler fires this after responding and has no one to tell.
func (h *ConversationHandler) HandleCapture(c *fiber.Ctx) error {
	var req captureRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	owner := ownerID(c)
	key := providerKey(c)
	queued := h.tasks.Go("conversation-capture", func(taskCtx context.Context) error {
		stored, err := h.capturer.CaptureFromConversation(taskCtx, key, owner, req.ConversationID, req.Turns)
		if err != nil {
			return err
		}
		slog.Debug("conversation capture finished",
			"owner_id", owner,
			"conversation_id", req.ConversationID,
			"stored", stored)
		return nil
	})
	if !queued {
		return fiber.NewError(fiber.StatusServiceUnavailable, "capture queue is saturated")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}
