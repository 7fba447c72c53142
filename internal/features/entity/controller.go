package entity

import (
	"fmt"
	"strconv"

	"docsync/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type EntityController struct {
	Service EntityService
}

func NewEntityController(service EntityService) *EntityController {
	return &EntityController{Service: service}
}

// ParseID reads the numeric :id route parameter.
func ParseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entity id %q", c.Params("id"))
	}
	return id, nil
}

// ListEntities godoc
// @Summary List entities with their sync state
// @Tags entities
// @Produce json
// @Param type query string false "Entity type"
// @Param index_result query string false "queued, indexed, error, not_found or no_index"
// @Param dirty query bool false "Only dirty (or clean) entities"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {array} Entity
// @Router /api/entities [get]
func (ctrl *EntityController) ListEntities(c *fiber.Ctx) error {
	filter := ListFilter{EntityType: c.Query("type")}
	filter.Page, _ = strconv.ParseInt(c.Query("page", "1"), 10, 64)
	filter.Limit, _ = strconv.ParseInt(c.Query("limit", "50"), 10, 64)

	if c.Query("index_result") != "" {
		result := IndexResult(c.Query("index_result"))
		filter.Result = &result
	}
	if d := c.Query("dirty"); d != "" {
		dirty := d == "true" || d == "1"
		filter.Dirty = &dirty
	}

	entities, err := ctrl.Service.List(c.UserContext(), filter)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(entities)
}

// GetEntity godoc
// @Summary Get an entity
// @Tags entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path int true "Entity ID"
// @Success 200 {object} Entity
// @Failure 404 {object} map[string]interface{}
// @Router /api/entities/{type}/{id} [get]
func (ctrl *EntityController) GetEntity(c *fiber.Ctx) error {
	id, err := ParseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	e, err := ctrl.Service.Get(c.UserContext(), c.Params("type"), id)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(e)
}

// UpsertEntity godoc
// @Summary Create or update the fields of an entity
// @Description Changed fields mark the entity dirty so the next reconciliation resubmits it.
// @Tags entities
// @Accept json
// @Produce json
// @Param type path string true "Entity type"
// @Param id path int true "Entity ID"
// @Param fields body map[string]interface{} true "Fields"
// @Success 200 {object} Entity
// @Router /api/entities/{type}/{id} [put]
func (ctrl *EntityController) UpsertEntity(c *fiber.Ctx) error {
	id, err := ParseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var fields map[string]any
	if err := c.BodyParser(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	e, _, err := ctrl.Service.Upsert(c.UserContext(), c.Params("type"), id, fields, true)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(e)
}

// ExportEntities godoc
// @Summary Export the sync state of an entity type as xlsx
// @Tags entities
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param type path string true "Entity type"
// @Success 200 {file} file
// @Router /api/entities/{type}/export [get]
func (ctrl *EntityController) ExportEntities(c *fiber.Ctx) error {
	data, filename, err := ctrl.Service.Export(c.UserContext(), c.Params("type"))
	if err != nil {
		return api.Error(c, err)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return c.Send(data)
}
