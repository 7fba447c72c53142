package entity

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type EntityApi struct {
	controller *EntityController
	config     *config.Config
}

func NewEntityApi(controller *EntityController, config *config.Config) api.Route {
	return &EntityApi{
		controller: controller,
		config:     config,
	}
}

func (h *EntityApi) Setup(app *fiber.App) {
	entities := app.Group("/api/entities", middleware.AuthMiddleware(h.config.SkipAuth))

	entities.Get("/", h.controller.ListEntities)
	entities.Get("/:type/export", h.controller.ExportEntities)
	entities.Get("/:type/:id", h.controller.GetEntity)
	entities.Put("/:type/:id", middleware.RequireRole(utils.RoleAdmin, utils.RoleOperator), h.controller.UpsertEntity)
}
