// Package app assembles the sync engine for the server and the CLI.
package app

import (
	"context"
	"time"

	"docsync/internal/config"
	"docsync/internal/database"
	"docsync/internal/features/audit"
	"docsync/internal/features/definition"
	"docsync/internal/features/entity"
	"docsync/internal/features/reconcile"
	"docsync/internal/features/remote"
	"docsync/internal/features/scheduler"
	"docsync/internal/features/source"
	"docsync/internal/features/task"
	"docsync/pkg/utils"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Core provides the repositories and services shared by every entrypoint.
// Callers supply *config.Config, *zap.Logger and a task.Notifier.
var Core = fx.Options(
	fx.Provide(
		database.NewDatabase,
		remote.NewRegistry,
		func(r *remote.Registry) remote.Resolver { return r },

		// Repositories
		audit.NewAuditRepository,
		definition.NewDefinitionRepository,
		entity.NewEntityRepository,
		task.NewTaskRepository,
		reconcile.NewRunLogRepository,
		scheduler.NewJobRepository,

		// Services
		audit.NewAuditService,
		definition.NewDefinitionService,
		entity.NewEntityService,
		task.NewTracker,
		reconcile.NewReconcileService,
		source.NewOdooClient,
		source.NewSourceService,
		scheduler.NewRunner,
		scheduler.NewJobService,
	),
	fx.Invoke(useSecret, closeRemotes),
)

func useSecret(cfg *config.Config) {
	utils.SetSecret(cfg.JWTSecret)
}

func closeRemotes(lc fx.Lifecycle, registry *remote.Registry, odoo *source.OdooClient) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if odoo != nil {
				odoo.Close()
			}
			return registry.Close(ctx)
		},
	})
}

// Indexes lists the repositories whose indexes are created at startup.
type Indexes struct {
	fx.In

	Audit       audit.AuditRepository
	Definitions definition.DefinitionRepository
	Entities    entity.EntityRepository
	Tasks       task.TaskRepository
	Runs        reconcile.RunLogRepository
	Jobs        scheduler.JobRepository
}

// EnsureIndexes creates the indexes in the background so a slow store does
// not hold up startup.
func EnsureIndexes(lc fx.Lifecycle, idx Indexes, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				repos := map[string]interface{ EnsureIndexes(context.Context) error }{
					"audit_logs":        idx.Audit,
					"index_definitions": idx.Definitions,
					"entities":          idx.Entities,
					"sync_tasks":        idx.Tasks,
					"sync_runs":         idx.Runs,
					"scheduled_jobs":    idx.Jobs,
				}
				for name, repo := range repos {
					if err := repo.EnsureIndexes(ctx); err != nil {
						logger.Warn("Failed to ensure indexes", zap.String("collection", name), zap.Error(err))
					}
				}
			}()
			return nil
		},
	})
}
