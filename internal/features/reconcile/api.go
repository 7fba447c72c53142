package reconcile

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type ReconcileApi struct {
	controller *ReconcileController
	config     *config.Config
}

func NewReconcileApi(controller *ReconcileController, config *config.Config) api.Route {
	return &ReconcileApi{
		controller: controller,
		config:     config,
	}
}

func (h *ReconcileApi) Setup(app *fiber.App) {
	operator := middleware.RequireRole(utils.RoleAdmin, utils.RoleOperator)

	sync := app.Group("/api/sync", middleware.AuthMiddleware(h.config.SkipAuth))
	sync.Get("/:type/logs", h.controller.ListLogs)
	sync.Post("/reconcile-all", operator, h.controller.ReconcileAll)
	sync.Post("/:type/reconcile", operator, h.controller.Reconcile)
	sync.Post("/:type/verify", operator, h.controller.Verify)

	entities := app.Group("/api/entities", middleware.AuthMiddleware(h.config.SkipAuth))
	entities.Post("/:type/:id/verify", operator, h.controller.VerifyEntity)
	entities.Post("/:type/:id/sync", operator, h.controller.SyncEntity)
	entities.Post("/:type/:id/unindex", operator, h.controller.UnindexEntity)
	entities.Delete("/:type/:id", operator, h.controller.DeleteEntity)
}
