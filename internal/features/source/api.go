package source

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type SourceApi struct {
	controller *SourceController
	config     *config.Config
}

func NewSourceApi(controller *SourceController, config *config.Config) api.Route {
	return &SourceApi{
		controller: controller,
		config:     config,
	}
}

func (h *SourceApi) Setup(app *fiber.App) {
	sources := app.Group("/api/sources", middleware.AuthMiddleware(h.config.SkipAuth))
	operator := middleware.RequireRole(utils.RoleAdmin, utils.RoleOperator)

	sources.Post("/odoo/:type", operator, h.controller.PullOdoo)
	sources.Post("/remote/:type", operator, h.controller.PullRemote)
}
