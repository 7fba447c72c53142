package scheduler

import (
	"docsync/internal/common/api"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JobController struct {
	Service JobService
}

func NewJobController(service JobService) *JobController {
	return &JobController{Service: service}
}

// CreateJob godoc
// @Summary Create a scheduled job
// @Tags jobs
// @Accept json
// @Produce json
// @Param job body ScheduledJob true "Scheduled job"
// @Success 201 {object} ScheduledJob
// @Failure 400 {object} map[string]interface{}
// @Router /api/jobs [post]
func (ctrl *JobController) CreateJob(c *fiber.Ctx) error {
	var job ScheduledJob
	if err := c.BodyParser(&job); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := ctrl.Service.CreateJob(c.UserContext(), &job); err != nil {
		return api.Error(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(job)
}

// ListJobs godoc
// @Summary List scheduled jobs
// @Tags jobs
// @Produce json
// @Param kind query string false "Filter by job kind"
// @Param active query boolean false "Filter by active status"
// @Success 200 {array} ScheduledJob
// @Router /api/jobs [get]
func (ctrl *JobController) ListJobs(c *fiber.Ctx) error {
	filter := JobFilter{Kind: JobKind(c.Query("kind"))}
	if active := c.Query("active"); active != "" {
		v := active == "true"
		filter.Active = &v
	}

	jobs, err := ctrl.Service.ListJobs(c.UserContext(), filter)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(jobs)
}

// ListKinds godoc
// @Summary List the job kinds a scheduled job can run
// @Tags jobs
// @Produce json
// @Success 200 {array} string
// @Router /api/jobs/kinds [get]
func (ctrl *JobController) ListKinds(c *fiber.Ctx) error {
	return c.JSON(Kinds)
}

// GetJob godoc
// @Summary Get a scheduled job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} ScheduledJob
// @Failure 404 {object} map[string]interface{}
// @Router /api/jobs/{id} [get]
func (ctrl *JobController) GetJob(c *fiber.Ctx) error {
	job, err := ctrl.Service.GetJob(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(job)
}

// UpdateJob godoc
// @Summary Replace a scheduled job
// @Tags jobs
// @Accept json
// @Produce json
// @Param id path string true "Job ID"
// @Param job body ScheduledJob true "Scheduled job"
// @Success 200 {object} ScheduledJob
// @Router /api/jobs/{id} [put]
func (ctrl *JobController) UpdateJob(c *fiber.Ctx) error {
	id, err := primitive.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid job ID"})
	}

	var job ScheduledJob
	if err := c.BodyParser(&job); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	job.ID = id

	if err := ctrl.Service.UpdateJob(c.UserContext(), &job); err != nil {
		return api.Error(c, err)
	}
	return c.JSON(job)
}

// DeleteJob godoc
// @Summary Delete a scheduled job
// @Tags jobs
// @Param id path string true "Job ID"
// @Success 204
// @Router /api/jobs/{id} [delete]
func (ctrl *JobController) DeleteJob(c *fiber.Ctx) error {
	if err := ctrl.Service.DeleteJob(c.UserContext(), c.Params("id")); err != nil {
		return api.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunJob godoc
// @Summary Run a scheduled job now
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobRun
// @Success 207 {object} map[string]interface{}
// @Router /api/jobs/{id}/run [post]
func (ctrl *JobController) RunJob(c *fiber.Ctx) error {
	run, err := ctrl.Service.RunJob(c.UserContext(), c.Params("id"))
	if err != nil {
		if run == nil {
			return api.Error(c, err)
		}
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"error": err.Error(),
			"run":   run,
		})
	}
	return c.JSON(run)
}

// ListRuns godoc
// @Summary List the executions of a scheduled job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Param limit query int false "Maximum runs" default(50)
// @Success 200 {array} JobRun
// @Router /api/jobs/{id}/runs [get]
func (ctrl *JobController) ListRuns(c *fiber.Ctx) error {
	runs, err := ctrl.Service.ListRuns(c.UserContext(), c.Params("id"), c.QueryInt("limit", 50))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(runs)
}
