package scheduler

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"
	"docsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type JobApi struct {
	controller *JobController
	config     *config.Config
}

func NewJobApi(controller *JobController, config *config.Config) api.Route {
	return &JobApi{
		controller: controller,
		config:     config,
	}
}

func (h *JobApi) Setup(app *fiber.App) {
	jobs := app.Group("/api/jobs", middleware.AuthMiddleware(h.config.SkipAuth))
	admin := middleware.RequireRole(utils.RoleAdmin)
	operator := middleware.RequireRole(utils.RoleAdmin, utils.RoleOperator)

	jobs.Get("/", h.controller.ListJobs)
	jobs.Get("/kinds", h.controller.ListKinds)
	jobs.Get("/:id", h.controller.GetJob)
	jobs.Get("/:id/runs", h.controller.ListRuns)

	jobs.Post("/", admin, h.controller.CreateJob)
	jobs.Put("/:id", admin, h.controller.UpdateJob)
	jobs.Delete("/:id", admin, h.controller.DeleteJob)
	jobs.Post("/:id/run", operator, h.controller.RunJob)
}
