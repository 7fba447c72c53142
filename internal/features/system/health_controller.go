package system

import (
	"context"
	"time"

	"docsync/internal/database"
	"docsync/internal/features/remote"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether the local store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	Store   Pinger
	Remotes remote.Resolver
	Hub     *TaskHub
}

func NewHealthController(db *database.MongodbDB, remotes remote.Resolver, hub *TaskHub) *HealthController {
	return &HealthController{Store: db, Remotes: remotes, Hub: hub}
}

// Health godoc
// @Summary Service health
// @Description Checks the local store and every configured remote
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthController) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	status, overall := fiber.StatusOK, "ok"
	store := "ok"
	if err := h.Store.Ping(ctx); err != nil {
		store = err.Error()
		status, overall = fiber.StatusServiceUnavailable, "degraded"
	}

	remotes := fiber.Map{}
	for _, kind := range remote.Kinds() {
		client, err := h.Remotes.Client(kind)
		if err != nil {
			continue
		}
		checker, ok := client.(remote.HealthChecker)
		if !ok {
			remotes[string(kind)] = "configured"
			continue
		}
		if err := checker.Health(ctx); err != nil {
			remotes[string(kind)] = err.Error()
			continue
		}
		remotes[string(kind)] = "ok"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":           overall,
		"store":            store,
		"remotes":          remotes,
		"feed_subscribers": h.Hub.Subscribers(),
	})
}

// WhoAmI godoc
// @Summary Get the caller's token claims
// @Tags system
// @Produce json
// @Success 200 {object} utils.UserClaims
// @Router /api/me [get]
func (h *HealthController) WhoAmI(c *fiber.Ctx) error {
	claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.JSON(claims)
}
