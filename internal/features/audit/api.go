package audit

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
}

func NewAuditApi(controller *AuditController, config *config.Config) api.Route {
	return &AuditApi{
		controller: controller,
		config:     config,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	logs := app.Group("/api/audit-logs", middleware.AuthMiddleware(h.config.SkipAuth), middleware.RequireRole(utils.RoleAdmin))

	logs.Get("/", h.controller.ListLogs)
	logs.Get("/:module/:id", h.controller.History)
}
