package middleware

import (
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// RequireRole lets the request through when the caller holds one of roles.
// Must run after AuthMiddleware.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !claims.HasRole(roles...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: insufficient role",
			})
		}

		return c.Next()
	}
}
