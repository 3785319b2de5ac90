package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/givelift/recall/internal/errors"
)

const (
	headerOwnerID     = "X-Owner-ID"
	headerProviderKey = "X-Provider-Key"

	localOwnerID     = "ownerID"
	localProviderKey = "providerKey"
)

// RequireOwner rejects requests without an owner identity. Every /api/v1
// route is owner-scoped; there is no cross-owner surface.
func RequireOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := strings.TrimSpace(c.Get(headerOwnerID))
		if owner == "" {
			return errors.NewValidation("%s header is required", headerOwnerID)
		}
		c.Locals(localOwnerID, owner)
		c.Locals(localProviderKey, strings.TrimSpace(c.Get(headerProviderKey)))
		return c.Next()
	}
}

func ownerID(c *fiber.Ctx) string {
	owner, _ := c.Locals(localOwnerID).(string)
	return owner
}

// providerKey is the caller's per-request credential. Empty means the
// request runs on platform credentials where the provider client allows
// it, and skips credential-gated paths where it does not.
func providerKey(c *fiber.Ctx) string {
	key, _ := c.Locals(localProviderKey).(string)
	return key
}
