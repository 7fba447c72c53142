package definition

import (
	"context"
	"fmt"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/config"
	"docsync/internal/features/audit"
	"docsync/internal/features/remote"
)

const auditModule = "index_definitions"

type DefinitionService interface {
	CreateDefinition(ctx context.Context, def *Definition) error
	GetDefinition(ctx context.Context, id string) (*Definition, error)
	ListDefinitions(ctx context.Context) ([]Definition, error)
	UpdateDefinition(ctx context.Context, id string, def *Definition) error
	DeleteDefinition(ctx context.Context, id string) error

	// Resolve returns the enabled definition for entityType in the configured
	// scope, or a NoIndexConfigured error.
	Resolve(ctx context.Context, entityType string) (*Definition, error)
	// EntityTypes lists the entity types with an enabled definition in scope.
	EntityTypes(ctx context.Context) ([]string, error)

	CreateCollection(ctx context.Context, id string) (*remote.Handle, error)
	ApplySettings(ctx context.Context, id string) (*remote.Handle, error)
	DeleteCollection(ctx context.Context, id string) (*remote.Handle, error)
	CollectionExists(ctx context.Context, id string) (bool, error)
	RemoteHealth(ctx context.Context, kind remote.Kind) error
}

type DefinitionServiceImpl struct {
	Repo         DefinitionRepository
	AuditService audit.AuditService
	Remotes      remote.Resolver
	Scope        string
}

func NewDefinitionService(repo DefinitionRepository, auditService audit.AuditService, remotes remote.Resolver, cfg *config.Config) DefinitionService {
	return &DefinitionServiceImpl{
		Repo:         repo,
		AuditService: auditService,
		Remotes:      remotes,
		Scope:        cfg.SyncScope,
	}
}

func (s *DefinitionServiceImpl) CreateDefinition(ctx context.Context, def *Definition) error {
	def.Normalize()
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.checkConflict(ctx, def); err != nil {
		return err
	}
	if err := s.Repo.Create(ctx, def); err != nil {
		return err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionCreate, auditModule, def.ID.Hex(), map[string]common_models.Change{
		"definition": {New: def},
	})
	return nil
}

func (s *DefinitionServiceImpl) GetDefinition(ctx context.Context, id string) (*Definition, error) {
	def, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "invalid definition id %q", id)
	}
	if def == nil {
		return nil, errs.New(errs.NotFound, "definition %s not found", id)
	}
	return def, nil
}

func (s *DefinitionServiceImpl) ListDefinitions(ctx context.Context) ([]Definition, error) {
	return s.Repo.List(ctx)
}

func (s *DefinitionServiceImpl) UpdateDefinition(ctx context.Context, id string, def *Definition) error {
	old, err := s.GetDefinition(ctx, id)
	if err != nil {
		return err
	}

	def.ID = old.ID
	def.CreatedAt = old.CreatedAt
	def.Normalize()
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.checkConflict(ctx, def); err != nil {
		return err
	}
	if err := s.Repo.Update(ctx, def); err != nil {
		return err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionUpdate, auditModule, id, map[string]common_models.Change{
		"definition": {Old: old, New: def},
	})
	return nil
}

func (s *DefinitionServiceImpl) DeleteDefinition(ctx context.Context, id string) error {
	old, err := s.GetDefinition(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionDelete, auditModule, id, map[string]common_models.Change{
		"definition": {Old: old},
	})
	return nil
}

// checkConflict rejects def when another enabled definition could match the
// same (entity type, scope) pair.
func (s *DefinitionServiceImpl) checkConflict(ctx context.Context, def *Definition) error {
	if !def.Enabled {
		return nil
	}
	enabled, err := s.Repo.ListEnabled(ctx, def.EntityType)
	if err != nil {
		return err
	}
	for i := range enabled {
		other := &enabled[i]
		if other.ID == def.ID {
			continue
		}
		if def.Overlaps(other) {
			return errs.New(errs.Conflict, "definition %q already indexes %s in scope %q", other.Name, def.EntityType, other.Scope)
		}
	}
	return nil
}

func (s *DefinitionServiceImpl) Resolve(ctx context.Context, entityType string) (*Definition, error) {
	enabled, err := s.Repo.ListEnabled(ctx, entityType)
	if err != nil {
		return nil, err
	}
	for i := range enabled {
		if enabled[i].Matches(s.Scope) {
			return &enabled[i], nil
		}
	}
	return nil, errs.New(errs.NoIndexConfigured, "no index configured for %s in scope %q", entityType, s.Scope)
}

func (s *DefinitionServiceImpl) EntityTypes(ctx context.Context) ([]string, error) {
	enabled, err := s.Repo.ListEnabled(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	types := []string{}
	for _, def := range enabled {
		if !def.Matches(s.Scope) || seen[def.EntityType] {
			continue
		}
		seen[def.EntityType] = true
		types = append(types, def.EntityType)
	}
	return types, nil
}

func (s *DefinitionServiceImpl) CreateCollection(ctx context.Context, id string) (*remote.Handle, error) {
	return s.manage(ctx, id, "create", func(m remote.CollectionManager, def *Definition, coll remote.Collection) (*remote.Handle, error) {
		return m.CreateCollection(ctx, coll)
	})
}

func (s *DefinitionServiceImpl) ApplySettings(ctx context.Context, id string) (*remote.Handle, error) {
	return s.manage(ctx, id, "settings", func(m remote.CollectionManager, def *Definition, coll remote.Collection) (*remote.Handle, error) {
		return m.UpdateSettings(ctx, coll, def.Settings)
	})
}

func (s *DefinitionServiceImpl) DeleteCollection(ctx context.Context, id string) (*remote.Handle, error) {
	return s.manage(ctx, id, "delete", func(m remote.CollectionManager, def *Definition, coll remote.Collection) (*remote.Handle, error) {
		return m.DeleteCollection(ctx, coll)
	})
}

func (s *DefinitionServiceImpl) CollectionExists(ctx context.Context, id string) (bool, error) {
	def, err := s.GetDefinition(ctx, id)
	if err != nil {
		return false, err
	}
	manager, coll, err := s.collectionManager(def)
	if err != nil {
		return false, err
	}
	return manager.CollectionExists(ctx, coll)
}

func (s *DefinitionServiceImpl) RemoteHealth(ctx context.Context, kind remote.Kind) error {
	client, err := s.Remotes.Client(kind)
	if err != nil {
		return err
	}
	checker, ok := client.(remote.HealthChecker)
	if !ok {
		return errs.New(errs.Invalid, "remote %s has no health check", kind)
	}
	return checker.Health(ctx)
}

type manageFunc func(m remote.CollectionManager, def *Definition, coll remote.Collection) (*remote.Handle, error)

func (s *DefinitionServiceImpl) manage(ctx context.Context, id, action string, fn manageFunc) (*remote.Handle, error) {
	def, err := s.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	manager, coll, err := s.collectionManager(def)
	if err != nil {
		return nil, err
	}

	handle, err := fn(manager, def, coll)
	if err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionCollection, auditModule, id, map[string]common_models.Change{
		action: {New: fmt.Sprintf("%s/%s", def.Remote, coll.Name)},
	})
	return handle, nil
}

func (s *DefinitionServiceImpl) collectionManager(def *Definition) (remote.CollectionManager, remote.Collection, error) {
	coll, err := def.RemoteCollection()
	if err != nil {
		return nil, remote.Collection{}, err
	}
	client, err := s.Remotes.Client(def.Remote)
	if err != nil {
		return nil, remote.Collection{}, err
	}
	manager, ok := client.(remote.CollectionManager)
	if !ok {
		return nil, remote.Collection{}, errs.New(errs.Invalid, "remote %s does not manage collections", def.Remote)
	}
	return manager, coll, nil
}
