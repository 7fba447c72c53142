package definition

import (
	"docsync/internal/common/api"
	"docsync/internal/features/remote"

	"github.com/gofiber/fiber/v2"
)

type DefinitionController struct {
	Service DefinitionService
}

func NewDefinitionController(service DefinitionService) *DefinitionController {
	return &DefinitionController{Service: service}
}

// CreateDefinition godoc
// @Summary Create an index definition
// @Tags index-definitions
// @Accept json
// @Produce json
// @Param definition body Definition true "Definition"
// @Success 201 {object} Definition
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/index-definitions [post]
func (ctrl *DefinitionController) CreateDefinition(c *fiber.Ctx) error {
	var def Definition
	if err := c.BodyParser(&def); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.Service.CreateDefinition(c.UserContext(), &def); err != nil {
		return api.Error(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(def)
}

// ListDefinitions godoc
// @Summary List index definitions
// @Tags index-definitions
// @Produce json
// @Success 200 {array} Definition
// @Router /api/index-definitions [get]
func (ctrl *DefinitionController) ListDefinitions(c *fiber.Ctx) error {
	defs, err := ctrl.Service.ListDefinitions(c.UserContext())
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(defs)
}

// GetDefinition godoc
// @Summary Get an index definition
// @Tags index-definitions
// @Produce json
// @Param id path string true "Definition ID"
// @Success 200 {object} Definition
// @Failure 404 {object} map[string]interface{}
// @Router /api/index-definitions/{id} [get]
func (ctrl *DefinitionController) GetDefinition(c *fiber.Ctx) error {
	def, err := ctrl.Service.GetDefinition(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(def)
}

// UpdateDefinition godoc
// @Summary Replace an index definition
// @Tags index-definitions
// @Accept json
// @Produce json
// @Param id path string true "Definition ID"
// @Param definition body Definition true "Definition"
// @Success 200 {object} Definition
// @Router /api/index-definitions/{id} [put]
func (ctrl *DefinitionController) UpdateDefinition(c *fiber.Ctx) error {
	var def Definition
	if err := c.BodyParser(&def); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := ctrl.Service.UpdateDefinition(c.UserContext(), c.Params("id"), &def); err != nil {
		return api.Error(c, err)
	}
	return c.JSON(def)
}

// DeleteDefinition godoc
// @Summary Delete an index definition
// @Tags index-definitions
// @Param id path string true "Definition ID"
// @Success 204
// @Router /api/index-definitions/{id} [delete]
func (ctrl *DefinitionController) DeleteDefinition(c *fiber.Ctx) error {
	if err := ctrl.Service.DeleteDefinition(c.UserContext(), c.Params("id")); err != nil {
		return api.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateCollection godoc
// @Summary Create the remote collection of a definition
// @Tags index-definitions
// @Produce json
// @Param id path string true "Definition ID"
// @Success 202 {object} map[string]interface{}
// @Router /api/index-definitions/{id}/collection [post]
func (ctrl *DefinitionController) CreateCollection(c *fiber.Ctx) error {
	h, err := ctrl.Service.CreateCollection(c.UserContext(), c.Params("id"))
	return respondHandle(c, h, err)
}

// ApplySettings godoc
// @Summary Push the definition settings to its remote collection
// @Tags index-definitions
// @Produce json
// @Param id path string true "Definition ID"
// @Success 202 {object} map[string]interface{}
// @Router /api/index-definitions/{id}/settings [put]
func (ctrl *DefinitionController) ApplySettings(c *fiber.Ctx) error {
	h, err := ctrl.Service.ApplySettings(c.UserContext(), c.Params("id"))
	return respondHandle(c, h, err)
}

// DeleteCollection godoc
// @Summary Drop the remote collection of a definition
// @Tags index-definitions
// @Produce json
// @Param id path string true "Definition ID"
// @Success 202 {object} map[string]interface{}
// @Router /api/index-definitions/{id}/collection [delete]
func (ctrl *DefinitionController) DeleteCollection(c *fiber.Ctx) error {
	h, err := ctrl.Service.DeleteCollection(c.UserContext(), c.Params("id"))
	return respondHandle(c, h, err)
}

// CheckCollection godoc
// @Summary Check that the remote collection exists
// @Tags index-definitions
// @Produce json
// @Param id path string true "Definition ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/index-definitions/{id}/check [get]
func (ctrl *DefinitionController) CheckCollection(c *fiber.Ctx) error {
	exists, err := ctrl.Service.CollectionExists(c.UserContext(), c.Params("id"))
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(fiber.Map{"exists": exists})
}

// RemoteHealth godoc
// @Summary Check connectivity and credentials of a remote
// @Tags remotes
// @Produce json
// @Param remote path string true "meilisearch, sqltable or mongo"
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/remotes/{remote}/health [get]
func (ctrl *DefinitionController) RemoteHealth(c *fiber.Ctx) error {
	kind := remote.Kind(c.Params("remote"))
	if err := ctrl.Service.RemoteHealth(c.UserContext(), kind); err != nil {
		return api.Error(c, err)
	}
	return c.JSON(fiber.Map{"remote": kind, "status": "ok"})
}

func respondHandle(c *fiber.Ctx, h *remote.Handle, err error) error {
	if err != nil {
		return api.Error(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"uid":         h.UID,
		"status":      h.Status,
		"enqueued_at": h.EnqueuedAt,
	})
}
