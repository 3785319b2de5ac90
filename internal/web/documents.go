package web

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/ingest"
	"github.com/givelift/recall/internal/types"
)

// DocumentService is the slice of the ingest service the handlers use.
type DocumentService interface {
	Accept(ctx context.Context, up ingest.Upload) (*types.Document, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*types.Document, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]types.Document, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// UsageReader reports an owner's stored footprint.
type UsageReader interface {
	StorageUsage(ctx context.Context, ownerID string) (types.StorageUsage, error)
}

type DocumentHandler struct {
	documents DocumentService
	usage     UsageReader
}

func NewDocumentHandler(documents DocumentService, usage UsageReader) *DocumentHandler {
	return &DocumentHandler{documents: documents, usage: usage}
}

// HandleUpload accepts one multipart file and answers 202 with the
// document in uploading state. Processing is asynchronous; callers poll
// GET /documents/:id for the terminal status.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return errors.NewValidation("multipart field %q is required", "file")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return errors.NewValidation("unreadable upload: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return errors.NewValidation("unreadable upload: %v", err)
	}

	doc, err := h.documents.Accept(c.UserContext(), ingest.Upload{
		OwnerID:    ownerID(c),
		Title:      c.FormValue("title"),
		SourceName: fileHeader.Filename,
		MIMEType:   fileHeader.Header.Get("Content-Type"),
		Data:       data,
		Tags:       splitTags(c.FormValue("tags")),
		APIKey:     providerKey(c),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(doc)
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.documents.List(c.UserContext(), ownerID(c), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []types.Document{}
	}
	return c.JSON(fiber.Map{"documents": docs})
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doc, err := h.documents.Get(c.UserContext(), ownerID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.documents.Delete(c.UserContext(), ownerID(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *DocumentHandler) HandleUsage(c *fiber.Ctx) error {
	usage, err := h.usage.StorageUsage(c.UserContext(), ownerID(c))
	if err != nil {
		return err
	}
	return c.JSON(usage)
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
