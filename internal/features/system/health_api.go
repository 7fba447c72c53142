package system

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type HealthApi struct {
	controller *HealthController
	config     *config.Config
}

func NewHealthApi(controller *HealthController, config *config.Config) api.Route {
	return &HealthApi{
		controller: controller,
		config:     config,
	}
}

func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/health", h.controller.Health)
	app.Get("/api/me", middleware.AuthMiddleware(h.config.SkipAuth), h.controller.WhoAmI)
}
