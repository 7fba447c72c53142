package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// WebhookAuth checks the static bearer token remotes send with their callbacks.
// An empty token disables the check.
func WebhookAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		got, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid webhook token",
			})
		}

		return c.Next()
	}
}
