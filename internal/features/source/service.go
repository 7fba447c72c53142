package source

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/features/audit"
	"docsync/internal/features/definition"
	"docsync/internal/features/entity"
	"docsync/internal/features/remote"
	"docsync/internal/logger"
	"docsync/pkg/fixer"

	"go.uber.org/zap"
)

const (
	FromOdoo   = "odoo"
	FromRemote = "remote"

	odooPageSize = 200
	auditModule  = "entities"
)

// DefinitionResolver is the part of the definition service a pull needs.
type DefinitionResolver interface {
	Resolve(ctx context.Context, entityType string) (*definition.Definition, error)
}

// PullResult summarizes one pull.
type PullResult struct {
	EntityType string    `json:"entity_type"`
	Source     string    `json:"source"`
	Read       int       `json:"read"`
	Created    int       `json:"created"`
	Changed    int       `json:"changed"`
	Skipped    int       `json:"skipped"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type SourceService interface {
	// PullOdoo reads every record of an Odoo model and upserts its mapped
	// fields. Entities whose fields changed are flagged for the next sync.
	PullOdoo(ctx context.Context, entityType, model string) (*PullResult, error)
	// PullRemote reads rows back from the remote of a definition. Pulled
	// entities already match the remote and are recorded as indexed.
	PullRemote(ctx context.Context, entityType string, limit int) (*PullResult, error)
}

type SourceServiceImpl struct {
	Definitions  DefinitionResolver
	Entities     entity.EntityService
	States       entity.EntityRepository
	Remotes      remote.Resolver
	Odoo         OdooReader
	AuditService audit.AuditService
	Logger       *zap.Logger
	PageSize     int
}

func NewSourceService(defs definition.DefinitionService, entities entity.EntityService, states entity.EntityRepository, remotes remote.Resolver, odoo *OdooClient, auditService audit.AuditService, logger *zap.Logger) SourceService {
	s := &SourceServiceImpl{
		Definitions:  defs,
		Entities:     entities,
		States:       states,
		Remotes:      remotes,
		AuditService: auditService,
		Logger:       logger,
		PageSize:     odooPageSize,
	}
	// A nil *OdooClient must stay a nil interface.
	if odoo != nil {
		s.Odoo = odoo
	}
	return s
}

func (s *SourceServiceImpl) PullOdoo(ctx context.Context, entityType, model string) (*PullResult, error) {
	if s.Odoo == nil {
		return nil, errs.New(errs.RemoteUnavailable, "odoo is not configured")
	}
	def, err := s.Definitions.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model, _ = def.Settings["odoo_model"].(string)
	}
	if model == "" {
		return nil, errs.New(errs.Invalid, "no odoo model given for %s", entityType)
	}
	fields, err := def.Fields()
	if err != nil {
		return nil, err
	}
	names := odooFields(fields)

	res := &PullResult{EntityType: entityType, Source: FromOdoo, StartTime: time.Now()}
	for offset := 0; ; offset += s.PageSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		records, err := s.Odoo.SearchRead(ctx, model, names, offset, s.PageSize)
		if err != nil {
			return res, err
		}
		for _, rec := range records {
			res.Read++
			id, ok := remote.DocumentID(rec, "id")
			if !ok {
				res.Skipped++
				continue
			}
			values := make(map[string]any, len(rec))
			for k, v := range rec {
				if k != "id" {
					values[k] = odooValue(v)
				}
			}
			if _, err := s.upsert(ctx, res, entityType, id, values, true); err != nil {
				return res, err
			}
		}
		if len(records) < s.PageSize {
			break
		}
	}
	return s.finish(ctx, res), nil
}

func (s *SourceServiceImpl) PullRemote(ctx context.Context, entityType string, limit int) (*PullResult, error) {
	def, err := s.Definitions.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}
	client, err := s.Remotes.Client(def.Remote)
	if err != nil {
		return nil, err
	}
	reader, ok := client.(remote.RowReader)
	if !ok {
		return nil, errs.New(errs.Invalid, "remote %s cannot list its rows", def.Remote)
	}
	fields, err := def.Fields()
	if err != nil {
		return nil, err
	}
	coll, err := def.RemoteCollection()
	if err != nil {
		return nil, err
	}

	rows, err := reader.ReadRows(ctx, coll, limit)
	if err != nil {
		return nil, err
	}

	res := &PullResult{EntityType: entityType, Source: FromRemote, StartTime: time.Now()}
	pulled := make(map[int64]entity.StateUpdate, len(rows))
	for _, row := range rows {
		res.Read++
		values, err := fields.Restore(row)
		if err != nil {
			return res, errs.Wrap(errs.Invalid, err, "definition %q", def.Name)
		}
		id, ok := remote.DocumentID(values, def.PrimaryKey)
		if !ok {
			res.Skipped++
			continue
		}
		if def.PrimaryKey == "id" {
			delete(values, "id")
		}

		e, err := s.upsert(ctx, res, entityType, id, values, false)
		if err != nil {
			return res, err
		}
		doc, err := fields.Serialize(e.Values(), def.PrimaryKey)
		if err != nil {
			res.Skipped++
			continue
		}
		pulled[id] = entity.StateUpdate{
			Result:     entity.ResultIndexed,
			Response:   fmt.Sprintf("pulled from %s", coll.Name),
			Document:   doc,
			DetachTask: true,
		}
	}
	if err := s.States.SetStates(ctx, entityType, pulled); err != nil {
		return res, err
	}
	return s.finish(ctx, res), nil
}

// upsert stores values and counts the entity as created or changed.
func (s *SourceServiceImpl) upsert(ctx context.Context, res *PullResult, entityType string, id int64, values map[string]any, markDirty bool) (*entity.Entity, error) {
	existing, err := s.States.Get(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	e, changed, err := s.Entities.Upsert(ctx, entityType, id, values, markDirty)
	if err != nil {
		return nil, err
	}
	switch {
	case existing == nil:
		res.Created++
	case changed:
		res.Changed++
	}
	return e, nil
}

func (s *SourceServiceImpl) finish(ctx context.Context, res *PullResult) *PullResult {
	res.EndTime = time.Now()
	s.Logger.Info("Pull finished",
		logger.EntityType(res.EntityType),
		zap.String("source", res.Source),
		zap.Int("read", res.Read),
		zap.Int("created", res.Created),
		zap.Int("changed", res.Changed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("took", res.EndTime.Sub(res.StartTime)))

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionSync, auditModule, res.EntityType, map[string]common_models.Change{
		"pull": {Old: res.Source, New: fmt.Sprintf("%d read, %d created, %d changed", res.Read, res.Created, res.Changed)},
	})
	return res
}

// odooFields lists the local field names to request, id first.
func odooFields(fields fixer.FieldMap) []string {
	names := []string{"id"}
	for local := range fields {
		if local != "id" {
			names = append(names, local)
		}
	}
	sort.Strings(names[1:])
	return names
}

// odooValue flattens many2one values ([id, display name]) to the id.
func odooValue(v any) any {
	if pair, ok := v.([]any); ok && len(pair) == 2 {
		if id, ok := pair[0].(int64); ok {
			if _, ok := pair[1].(string); ok {
				return id
			}
		}
	}
	return v
}
