package definition

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type DefinitionApi struct {
	controller *DefinitionController
	config     *config.Config
}

func NewDefinitionApi(controller *DefinitionController, config *config.Config) api.Route {
	return &DefinitionApi{
		controller: controller,
		config:     config,
	}
}

func (h *DefinitionApi) Setup(app *fiber.App) {
	defs := app.Group("/api/index-definitions", middleware.AuthMiddleware(h.config.SkipAuth))
	admin := middleware.RequireRole(utils.RoleAdmin)

	defs.Get("/", h.controller.ListDefinitions)
	defs.Get("/:id", h.controller.GetDefinition)
	defs.Get("/:id/check", h.controller.CheckCollection)

	defs.Post("/", admin, h.controller.CreateDefinition)
	defs.Put("/:id", admin, h.controller.UpdateDefinition)
	defs.Delete("/:id", admin, h.controller.DeleteDefinition)
	defs.Post("/:id/collection", admin, h.controller.CreateCollection)
	defs.Delete("/:id/collection", admin, h.controller.DeleteCollection)
	defs.Put("/:id/settings", admin, h.controller.ApplySettings)

	remotes := app.Group("/api/remotes", middleware.AuthMiddleware(h.config.SkipAuth))
	remotes.Get("/:remote/health", h.controller.RemoteHealth)
}
