package audit

import (
	"time"

	common_models "docsync/internal/common/models"
)

// Filter narrows an audit listing. Zero fields match everything.
type Filter struct {
	Module   string
	RecordID string
	Action   common_models.AuditAction
	ActorID  string
	Since    time.Time
	Until    time.Time
}

type Page struct {
	Items []common_models.AuditLog `json:"items"`
	Total int64                    `json:"total"`
	Page  int64                    `json:"page"`
	Limit int64                    `json:"limit"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

var actions = map[common_models.AuditAction]bool{
	common_models.AuditActionCreate:     true,
	common_models.AuditActionUpdate:     true,
	common_models.AuditActionDelete:     true,
	common_models.AuditActionSync:       true,
	common_models.AuditActionCron:       true,
	common_models.AuditActionCollection: true,
}
