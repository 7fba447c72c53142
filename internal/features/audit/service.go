package audit

import (
	"context"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuditService records who changed definitions, jobs and entities, and which
// sync runs touched them.
type AuditService interface {
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	ListLogs(ctx context.Context, filter Filter, page, limit int64) (*Page, error)
}

type AuditServiceImpl struct {
	Repo AuditRepository
	Now  func() time.Time
}

func NewAuditService(repo AuditRepository) AuditService {
	return &AuditServiceImpl{Repo: repo, Now: time.Now}
}

func (s *AuditServiceImpl) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	// Scheduler and CLI runs carry no claims.
	actorID := "system"
	if claims, ok := ctx.Value(utils.UserClaimsKey).(*utils.UserClaims); ok {
		actorID = claims.UserID
	}

	return s.Repo.Create(ctx, common_models.AuditLog{
		ID:        primitive.NewObjectID(),
		Action:    action,
		Module:    module,
		RecordID:  recordID,
		ActorID:   actorID,
		Changes:   changes,
		Timestamp: s.Now().UTC(),
	})
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, filter Filter, page, limit int64) (*Page, error) {
	if filter.Action != "" && !actions[filter.Action] {
		return nil, errs.New(errs.Invalid, "unknown audit action %q", filter.Action)
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Since.Before(filter.Until) {
		return nil, errs.New(errs.Invalid, "since must be before until")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, err := s.Repo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.Repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}
