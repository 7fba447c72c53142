package source

import (
	"docsync/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type SourceController struct {
	Service SourceService
}

func NewSourceController(service SourceService) *SourceController {
	return &SourceController{Service: service}
}

// PullOdoo godoc
// @Summary Pull entity fields from an Odoo model
// @Tags sources
// @Produce json
// @Param type path string true "Entity type"
// @Param model query string false "Odoo model, defaults to the definition's odoo_model setting"
// @Success 200 {object} PullResult
// @Failure 503 {object} map[string]interface{}
// @Router /api/sources/odoo/{type} [post]
func (ctrl *SourceController) PullOdoo(c *fiber.Ctx) error {
	res, err := ctrl.Service.PullOdoo(c.UserContext(), c.Params("type"), c.Query("model"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(res)
}

// PullRemote godoc
// @Summary Pull rows back from the remote of a definition
// @Tags sources
// @Produce json
// @Param type path string true "Entity type"
// @Param limit query int false "Maximum rows to read"
// @Success 200 {object} PullResult
// @Router /api/sources/remote/{type} [post]
func (ctrl *SourceController) PullRemote(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must not be negative",
		})
	}

	res, err := ctrl.Service.PullRemote(c.UserContext(), c.Params("type"), limit)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(res)
}
