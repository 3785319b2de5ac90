package web

import (
	stderrors "errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/givelift/recall/internal/errors"
)

// errorBody is the JSON shape every failed request returns.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	QuotaKind string `json:"quota_kind,omitempty"`
}

// ErrorHandler maps engine errors onto their HTTP statuses. Anything
// outside the taxonomy is logged and returned as an opaque 500 so
// internals never leak into responses.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var engineErr *errors.EngineError
	if stderrors.As(err, &engineErr) {
		return c.Status(engineErr.Status).JSON(errorBody{
			Code:      string(engineErr.Code),
			Message:   engineErr.Message,
			QuotaKind: string(engineErr.Kind),
		})
	}

	var fiberErr *fiber.Error
	if stderrors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(errorBody{
			Code:    "HTTP",
			Message: fiberErr.Message,
		})
	}

	slog.Error("request failed",
		"method", c.Method(),
		"path", c.Path(),
		"error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody{
		Code:    string(errors.ErrInternal),
		Message: "internal error",
	})
}
