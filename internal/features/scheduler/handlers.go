package scheduler

import (
	"context"
	"fmt"
	"time"

	"docsync/internal/config"
	"docsync/internal/features/reconcile"
	"docsync/internal/features/source"
	"docsync/internal/features/task"
)

// TaskMaintainer is the part of the task tracker that jobs drive.
type TaskMaintainer interface {
	Poll(ctx context.Context) (int, error)
	Collect(ctx context.Context, minAge time.Duration) (int, error)
}

// Runner holds what job handlers call into.
type Runner struct {
	Reconcile reconcile.ReconcileService
	Tasks     TaskMaintainer
	Sources   source.SourceService
	GCMinAge  time.Duration
}

func NewRunner(rec reconcile.ReconcileService, tracker *task.Tracker, sources source.SourceService, cfg *config.Config) *Runner {
	return &Runner{Reconcile: rec, Tasks: tracker, Sources: sources, GCMinAge: cfg.TaskGCMinAge}
}

// handlerFunc runs one job and reports how many entities or tasks it touched.
type handlerFunc func(ctx context.Context, r *Runner, job *ScheduledJob) (int, string, error)

var handlers = map[JobKind]handlerFunc{
	JobReconcile:    runReconcile,
	JobVerify:       runVerify,
	JobReconcileAll: runReconcileAll,
	JobPollTasks:    runPollTasks,
	JobCollectTasks: runCollectTasks,
	JobPullOdoo:     runPullOdoo,
	JobPullRemote:   runPullRemote,
}

// Valid reports whether a handler exists for k.
func (k JobKind) Valid() bool {
	_, ok := handlers[k]
	return ok
}

func runReconcile(ctx context.Context, r *Runner, job *ScheduledJob) (int, string, error) {
	run, err := r.Reconcile.Reconcile(ctx, job.EntityType, job.Force)
	if run == nil {
		return 0, "", err
	}
	c := run.Counts
	return c.Submitted + c.Deleted, fmt.Sprintf("%s: %d submitted, %d deleted, %d skipped, %d errors", run.Status, c.Submitted, c.Deleted, c.Skipped, c.Errors), err
}

func runVerify(ctx context.Context, r *Runner, job *ScheduledJob) (int, string, error) {
	run, err := r.Reconcile.Verify(ctx, job.EntityType)
	if run == nil {
		return 0, "", err
	}
	c := run.Counts
	return c.Indexed + c.NotFound, fmt.Sprintf("%s: %d indexed, %d not found", run.Status, c.Indexed, c.NotFound), err
}

func runReconcileAll(ctx context.Context, r *Runner, job *ScheduledJob) (int, string, error) {
	runs, err := r.Reconcile.ReconcileAll(ctx, job.Force)
	affected := 0
	for _, run := range runs {
		affected += run.Counts.Submitted + run.Counts.Deleted
	}
	return affected, fmt.Sprintf("%d entity types reconciled", len(runs)), err
}

func runPollTasks(ctx context.Context, r *Runner, _ *ScheduledJob) (int, string, error) {
	n, err := r.Tasks.Poll(ctx)
	return n, fmt.Sprintf("%d tasks settled", n), err
}

func runCollectTasks(ctx context.Context, r *Runner, _ *ScheduledJob) (int, string, error) {
	n, err := r.Tasks.Collect(ctx, r.GCMinAge)
	return n, fmt.Sprintf("%d tasks removed", n), err
}

func runPullOdoo(ctx context.Context, r *Runner, job *ScheduledJob) (int, string, error) {
	return pulled(r.Sources.PullOdoo(ctx, job.EntityType, job.Model))
}

func runPullRemote(ctx context.Context, r *Runner, job *ScheduledJob) (int, string, error) {
	return pulled(r.Sources.PullRemote(ctx, job.EntityType, job.Limit))
}

func pulled(res *source.PullResult, err error) (int, string, error) {
	if res == nil {
		return 0, "", err
	}
	return res.Created + res.Changed, fmt.Sprintf("%d read, %d created, %d changed", res.Read, res.Created, res.Changed), err
}
