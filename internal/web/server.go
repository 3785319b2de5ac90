// Package web exposes the engine over HTTP: document upload and
// management, memory CRUD and search, the retrieval surface the chat
// handler splices into prompts, and conversation capture. Every /api/v1
// route is scoped to the owner named by the X-Owner-ID header.
package web

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/givelift/recall/internal/errors"
)

// maxUploadBytes bounds a single multipart request body.
const maxUploadBytes = 32 << 20

// Services carries the wired engine surfaces the routes delegate to.
type Services struct {
	Documents DocumentService
	Usage     UsageReader
	Memories  MemoryService
	Searcher  MemorySearcher
	Injector  Injector
	Capturer  Capturer
	Tasks     Tasks
}

type Server struct {
	app  *fiber.App
	addr string
}

func NewServer(addr string, services Services) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "recall",
		ErrorHandler: ErrorHandler,
		BodyLimit:    maxUploadBytes,
	})
	app.Use(recover.New())

	documents := NewDocumentHandler(services.Documents, services.Usage)
	memories := NewMemoryHandler(services.Memories, services.Searcher)
	conversations := NewConversationHandler(services.Injector, services.Capturer, services.Tasks)

	check := app.Group("/check")
	check.Get("/healthy", handleHealthy)

	apiv1 := app.Group("/api/v1", RequireOwner())
	apiv1.Post("/documents", documents.HandleUpload)
	apiv1.Get("/documents", documents.HandleList)
	apiv1.Get("/documents/:id", documents.HandleGet)
	apiv1.Delete("/documents/:id", documents.HandleDelete)

	apiv1.Post("/memories", memories.HandleCreate)
	apiv1.Get("/memories", memories.HandleList)
	apiv1.Post("/memories/search", memories.HandleSearch)
	apiv1.Delete("/memories/:id", memories.HandleDelete)

	apiv1.Post("/retrieve", conversations.HandleRetrieve)
	apiv1.Post("/conversations/capture", conversations.HandleCapture)

	apiv1.Get("/usage", documents.HandleUsage)

	return &Server{app: app, addr: addr}
}

// Listen blocks serving requests until Shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown drains in-flight requests within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func handleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

var validate = validator.New()

// parseBody decodes and validates a JSON request body, folding both
// failure kinds into the engine's validation error.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errors.NewValidation("invalid JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			parts := make([]string, len(fieldErrs))
			for i, fe := range fieldErrs {
				parts[i] = fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag())
			}
			return errors.NewValidation("invalid request: %s", strings.Join(parts, "; "))
		}
		return errors.NewValidation("invalid request")
	}
	return nil
}

func parseID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, errors.NewValidation("invalid id %q", c.Params("id"))
	}
	return id, nil
}
