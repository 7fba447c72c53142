package task

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type TaskApi struct {
	controller *TaskController
	config     *config.Config
}

func NewTaskApi(controller *TaskController, config *config.Config) api.Route {
	return &TaskApi{
		controller: controller,
		config:     config,
	}
}

func (h *TaskApi) Setup(app *fiber.App) {
	hooks := app.Group("/webhooks/meilisearch", middleware.WebhookAuth(h.config.WebhookToken))
	hooks.Get("/tasks", h.controller.WebhookHint)
	hooks.Post("/tasks", h.controller.Webhook)

	tasks := app.Group("/api/tasks", middleware.AuthMiddleware(h.config.SkipAuth))
	tasks.Get("/", h.controller.ListTasks)
	tasks.Get("/:id", h.controller.GetTask)
	tasks.Get("/:id/entities", h.controller.TaskEntities)
	tasks.Post("/:id/check", middleware.RequireRole(utils.RoleAdmin, utils.RoleOperator), h.controller.CheckTask)
}
