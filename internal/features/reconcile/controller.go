package reconcile

import (
	"context"
	"strconv"

	"docsync/internal/common/api"
	"docsync/internal/common/errs"
	"docsync/internal/features/entity"

	"github.com/gofiber/fiber/v2"
)

type ReconcileController struct {
	Service ReconcileService
}

func NewReconcileController(service ReconcileService) *ReconcileController {
	return &ReconcileController{Service: service}
}

// Reconcile godoc
// @Summary Reconcile an entity type with its remote
// @Tags sync
// @Produce json
// @Param type path string true "Entity type"
// @Param force query bool false "Resubmit unchanged documents"
// @Success 200 {object} RunLog
// @Failure 404 {object} map[string]interface{}
// @Router /api/sync/{type}/reconcile [post]
func (ctrl *ReconcileController) Reconcile(c *fiber.Ctx) error {
	run, err := ctrl.Service.Reconcile(c.UserContext(), c.Params("type"), c.QueryBool("force"))
	return respondRun(c, run, err)
}

// Verify godoc
// @Summary Check which entities of a type exist on the remote
// @Tags sync
// @Produce json
// @Param type path string true "Entity type"
// @Success 200 {object} RunLog
// @Router /api/sync/{type}/verify [post]
func (ctrl *ReconcileController) Verify(c *fiber.Ctx) error {
	run, err := ctrl.Service.Verify(c.UserContext(), c.Params("type"))
	return respondRun(c, run, err)
}

// ReconcileAll godoc
// @Summary Reconcile every configured entity type
// @Tags sync
// @Produce json
// @Param force query bool false "Resubmit unchanged documents"
// @Success 200 {array} RunLog
// @Router /api/sync/reconcile-all [post]
func (ctrl *ReconcileController) ReconcileAll(c *fiber.Ctx) error {
	runs, err := ctrl.Service.ReconcileAll(c.UserContext(), c.QueryBool("force"))
	if err != nil {
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"error": err.Error(),
			"runs":  runs,
		})
	}
	return c.JSON(runs)
}

// ListLogs godoc
// @Summary List the latest runs of an entity type
// @Tags sync
// @Produce json
// @Param type path string true "Entity type"
// @Param limit query int false "Number of runs"
// @Success 200 {array} RunLog
// @Router /api/sync/{type}/logs [get]
func (ctrl *ReconcileController) ListLogs(c *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	logs, err := ctrl.Service.ListLogs(c.UserContext(), c.Params("type"), limit)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(logs)
}

// VerifyEntity godoc
// @Summary Check one entity on the remote
// @Tags entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path int true "Entity ID"
// @Success 200 {object} entity.Entity
// @Router /api/entities/{type}/{id}/verify [post]
func (ctrl *ReconcileController) VerifyEntity(c *fiber.Ctx) error {
	return ctrl.single(c, ctrl.Service.VerifyOne)
}

// SyncEntity godoc
// @Summary Submit one entity to the remote
// @Tags entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path int true "Entity ID"
// @Success 200 {object} entity.Entity
// @Router /api/entities/{type}/{id}/sync [post]
func (ctrl *ReconcileController) SyncEntity(c *fiber.Ctx) error {
	return ctrl.single(c, ctrl.Service.SyncOne)
}

// UnindexEntity godoc
// @Summary Remove one entity from the remote
// @Tags entities
// @Produce json
// @Param type path string true "Entity type"
// @Param id path int true "Entity ID"
// @Success 200 {object} entity.Entity
// @Router /api/entities/{type}/{id}/unindex [post]
func (ctrl *ReconcileController) UnindexEntity(c *fiber.Ctx) error {
	return ctrl.single(c, ctrl.Service.Unindex)
}

// DeleteEntity godoc
// @Summary Delete an entity, removing it from the remote first
// @Tags entities
// @Param type path string true "Entity type"
// @Param id path int true "Entity ID"
// @Success 204
// @Router /api/entities/{type}/{id} [delete]
func (ctrl *ReconcileController) DeleteEntity(c *fiber.Ctx) error {
	id, err := entity.ParseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := ctrl.Service.DeleteEntity(c.UserContext(), c.Params("type"), id); err != nil {
		return api.Error(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type singleFunc func(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error)

func (ctrl *ReconcileController) single(c *fiber.Ctx, fn singleFunc) error {
	id, err := entity.ParseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	e, err := fn(c.UserContext(), c.Params("type"), id)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(e)
}

func respondRun(c *fiber.Ctx, run *RunLog, err error) error {
	if err != nil && !errs.Is(err, errs.NoIndexConfigured) {
		return api.Error(c, err)
	}
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
			"run":   run,
		})
	}
	return c.JSON(run)
}
