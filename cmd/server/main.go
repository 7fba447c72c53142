package main

import (
	"context"
	"fmt"
	"log"

	"docsync/internal/app"
	common_api "docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/features/audit"
	"docsync/internal/features/definition"
	"docsync/internal/features/entity"
	"docsync/internal/features/reconcile"
	"docsync/internal/features/scheduler"
	"docsync/internal/features/source"
	"docsync/internal/features/system"
	"docsync/internal/features/task"
	"docsync/internal/logger"
	"docsync/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Webhook payloads carry whole batches of task updates.
		BodyLimit: 16 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	return app
}

// AsRoute tags the constructor so Fx adds it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes calls Setup() on every member of the "routes" group.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	for _, route := range routes {
		logger.Debug("Setting up route", zap.String("route", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
	logger.Info("Routes registered", zap.Int("count", len(routes)))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer starts Fiber in a goroutine and shuts it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				logger.Info("Listening", zap.String("addr", port))
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.ShutdownWithContext(ctx)
		},
	})
}

// StartScheduler runs the scheduled jobs for the lifetime of the server.
func StartScheduler(lc fx.Lifecycle, jobs scheduler.JobService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return jobs.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			jobs.Stop()
			return nil
		},
	})
}

// @title           Document Sync API
// @version         1.0
// @description     Keeps local entities in sync with search indexes and external tables.

// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	server := fx.New(
		app.Core,
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,

			system.NewTaskHub,
			func(h *system.TaskHub) task.Notifier { return h },

			// Controllers
			audit.NewAuditController,
			definition.NewDefinitionController,
			entity.NewEntityController,
			task.NewTaskController,
			reconcile.NewReconcileController,
			source.NewSourceController,
			scheduler.NewJobController,
			system.NewHealthController,
			system.NewWebSocketController,

			// API Routes
			AsRoute(audit.NewAuditApi),
			AsRoute(definition.NewDefinitionApi),
			AsRoute(entity.NewEntityApi),
			AsRoute(task.NewTaskApi),
			AsRoute(reconcile.NewReconcileApi),
			AsRoute(source.NewSourceApi),
			AsRoute(scheduler.NewJobApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewWebSocketApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartScheduler,
			app.EnsureIndexes,
		),
	)

	server.Run()
}
