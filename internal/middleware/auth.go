package middleware

import (
	"context"

	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware validates JWT tokens and injects user claims into context
func AuthMiddleware(skipAuth bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			setClaims(c, &utils.UserClaims{
				UserID: "dev-admin",
				Roles:  []string{utils.RoleAdmin},
			})
			return c.Next()
		}

		token, ok := bearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

// setClaims exposes the caller to handlers (Locals) and to services (UserContext).
func setClaims(c *fiber.Ctx, claims *utils.UserClaims) {
	c.Locals(utils.UserClaimsKey, claims)
	c.SetUserContext(context.WithValue(c.UserContext(), utils.UserClaimsKey, claims))
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", false
	}
	return authHeader[7:], true
}
