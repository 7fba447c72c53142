package audit

import (
	"strconv"
	"time"

	"docsync/internal/common/api"
	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// ListLogs godoc
// @Summary List audit logs
// @Tags audit
// @Produce json
// @Param module query string false "index_definitions, scheduled_jobs or entities"
// @Param record_id query string false "Changed record"
// @Param action query string false "CREATE, UPDATE, DELETE, SYNC, CRON or COLLECTION"
// @Param actor query string false "User that made the change"
// @Param since query string false "RFC 3339 lower bound"
// @Param until query string false "RFC 3339 upper bound"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} Page
// @Failure 400 {object} map[string]string
// @Router /api/audit-logs [get]
func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	filter := Filter{
		Module:   c.Query("module"),
		RecordID: c.Query("record_id"),
		Action:   common_models.AuditAction(c.Query("action")),
		ActorID:  c.Query("actor"),
	}
	var err error
	if filter.Since, err = queryTime(c, "since"); err != nil {
		return api.Error(c, err)
	}
	if filter.Until, err = queryTime(c, "until"); err != nil {
		return api.Error(c, err)
	}
	return ctrl.list(c, filter)
}

// History godoc
// @Summary Audit trail of one record
// @Tags audit
// @Produce json
// @Param module path string true "Module"
// @Param id path string true "Record id or entity type"
// @Success 200 {object} Page
// @Router /api/audit-logs/{module}/{id} [get]
func (ctrl *AuditController) History(c *fiber.Ctx) error {
	return ctrl.list(c, Filter{Module: c.Params("module"), RecordID: c.Params("id")})
}

func (ctrl *AuditController) list(c *fiber.Ctx, filter Filter) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	logs, err := ctrl.Service.ListLogs(c.UserContext(), filter, page, limit)
	if err != nil {
		return api.Error(c, err)
	}
	return c.JSON(logs)
}

func queryTime(c *fiber.Ctx, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.Invalid, err, "invalid %s", key)
	}
	return t, nil
}
