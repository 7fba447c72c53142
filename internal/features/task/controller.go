package task

import (
	"strconv"

	"docsync/internal/common/api"
	"docsync/internal/common/errs"
	"docsync/internal/features/remote"

	"github.com/gofiber/fiber/v2"
)

type TaskController struct {
	Tracker *Tracker
}

func NewTaskController(tracker *Tracker) *TaskController {
	return &TaskController{Tracker: tracker}
}

// ListTasks godoc
// @Summary List tracked tasks
// @Tags tasks
// @Produce json
// @Param status query string false "enqueued, processing, succeeded or failed"
// @Param entity_type query string false "Entity type"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} Task
// @Router /api/tasks [get]
func (ctrl *TaskController) ListTasks(c *fiber.Ctx) error {
	filter := ListFilter{
		Status:     remote.Status(c.Query("status")),
		EntityType: c.Query("entity_type"),
	}
	filter.Page, _ = strconv.ParseInt(c.Query("page", "1"), 10, 64)
	filter.Limit, _ = strconv.ParseInt(c.Query("limit", "50"), 10, 64)

	tasks, err := ctrl.Tracker.List(c.UserContext(), filter)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(tasks)
}

// GetTask godoc
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} Task
// @Failure 404 {object} map[string]interface{}
// @Router /api/tasks/{id} [get]
func (ctrl *TaskController) GetTask(c *fiber.Ctx) error {
	task, err := ctrl.Tracker.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(task)
}

// CheckTask godoc
// @Summary Fetch the task status from its remote
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} Task
// @Router /api/tasks/{id}/check [post]
func (ctrl *TaskController) CheckTask(c *fiber.Ctx) error {
	task, err := ctrl.Tracker.PollOne(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(task)
}

// TaskEntities godoc
// @Summary List the entities attached to a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {array} entity.Entity
// @Router /api/tasks/{id}/entities [get]
func (ctrl *TaskController) TaskEntities(c *fiber.Ctx) error {
	entities, err := ctrl.Tracker.EntitiesOf(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(entities)
}

// Webhook godoc
// @Summary Meilisearch task webhook
// @Description Accepts gzip-compressed or plain NDJSON task notifications.
// @Tags webhooks
// @Accept application/x-ndjson
// @Produce json
// @Success 200 {object} WebhookResult
// @Failure 404 {object} map[string]interface{}
// @Router /webhooks/meilisearch/tasks [post]
func (ctrl *TaskController) Webhook(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty payload"})
	}

	res, err := ctrl.Tracker.HandleWebhook(c.UserContext(), body)
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error":   err.Error(),
				"applied": res.Applied,
			})
		}
		return api.Error(c, err)
	}
	return c.JSON(res)
}

// WebhookHint godoc
// @Summary Describe the webhook endpoint
// @Tags webhooks
// @Produce plain
// @Success 200 {string} string
// @Router /webhooks/meilisearch/tasks [get]
func (ctrl *TaskController) WebhookHint(c *fiber.Ctx) error {
	return c.SendString("Send me a POST request to this endpoint.")
}
