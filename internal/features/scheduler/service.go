package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/config"
	"docsync/internal/features/audit"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const auditModule = "scheduled_jobs"

type JobService interface {
	CreateJob(ctx context.Context, job *ScheduledJob) error
	GetJob(ctx context.Context, id string) (*ScheduledJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]ScheduledJob, error)
	UpdateJob(ctx context.Context, job *ScheduledJob) error
	DeleteJob(ctx context.Context, id string) error
	// RunJob executes a job now, outside its schedule.
	RunJob(ctx context.Context, id string) (*JobRun, error)
	ListRuns(ctx context.Context, id string, limit int) ([]JobRun, error)

	Start(ctx context.Context) error
	Stop()
}

type JobServiceImpl struct {
	repo         JobRepository
	runner       *Runner
	auditService audit.AuditService
	logger       *zap.Logger
	pollSchedule string
	gcSchedule   string

	scheduler  *cron.Cron
	jobEntries map[string]cron.EntryID
	mu         sync.RWMutex
	// base is canceled by Stop so running jobs see shutdown.
	base   context.Context
	cancel context.CancelFunc
}

func NewJobService(repo JobRepository, runner *Runner, auditService audit.AuditService, cfg *config.Config, logger *zap.Logger) JobService {
	return &JobServiceImpl{
		repo:         repo,
		runner:       runner,
		auditService: auditService,
		logger:       logger,
		pollSchedule: cfg.PollSchedule,
		gcSchedule:   cfg.GCSchedule,
		jobEntries:   make(map[string]cron.EntryID),
	}
}

func validate(job *ScheduledJob) (cron.Schedule, error) {
	if job.Name == "" {
		return nil, errs.New(errs.Invalid, "job name is required")
	}
	if !job.Kind.Valid() {
		return nil, errs.New(errs.Invalid, "unknown job kind %q", job.Kind)
	}
	if job.Kind.NeedsEntityType() && job.EntityType == "" {
		return nil, errs.New(errs.Invalid, "%s jobs need an entity type", job.Kind)
	}
	if job.Limit < 0 {
		return nil, errs.New(errs.Invalid, "limit must not be negative")
	}
	schedule, err := cron.ParseStandard(job.Schedule)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "invalid cron expression %q", job.Schedule)
	}
	return schedule, nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, errs.Wrap(errs.Invalid, err, "invalid job id %q", id)
	}
	return oid, nil
}

func (s *JobServiceImpl) CreateJob(ctx context.Context, job *ScheduledJob) error {
	schedule, err := validate(job)
	if err != nil {
		return err
	}
	next := schedule.Next(time.Now())
	job.NextRun = &next

	if err := s.repo.Create(ctx, job); err != nil {
		return err
	}

	_ = s.auditService.LogChange(ctx, common_models.AuditActionCron, auditModule, job.ID.Hex(), map[string]common_models.Change{
		"job": {New: job},
	})

	if job.Active {
		if err := s.register(job); err != nil {
			s.logger.Warn("Failed to register job", zap.String("job", job.ID.Hex()), zap.Error(err))
		}
	}
	return nil
}

func (s *JobServiceImpl) GetJob(ctx context.Context, id string) (*ScheduledJob, error) {
	if _, err := objectID(id); err != nil {
		return nil, err
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errs.New(errs.NotFound, "job %s not found", id)
	}
	return job, nil
}

func (s *JobServiceImpl) ListJobs(ctx context.Context, filter JobFilter) ([]ScheduledJob, error) {
	return s.repo.List(ctx, filter)
}

func (s *JobServiceImpl) UpdateJob(ctx context.Context, job *ScheduledJob) error {
	old, err := s.GetJob(ctx, job.ID.Hex())
	if err != nil {
		return err
	}
	schedule, err := validate(job)
	if err != nil {
		return err
	}
	next := schedule.Next(time.Now())
	job.NextRun = &next
	job.LastRun = old.LastRun
	job.LastStatus = old.LastStatus
	job.CreatedAt = old.CreatedAt

	if err := s.repo.Update(ctx, job); err != nil {
		return err
	}

	_ = s.auditService.LogChange(ctx, common_models.AuditActionCron, auditModule, job.ID.Hex(), map[string]common_models.Change{
		"job": {Old: old, New: job},
	})

	s.unregister(job.ID.Hex())
	if job.Active {
		if err := s.register(job); err != nil {
			s.logger.Warn("Failed to register updated job", zap.String("job", job.ID.Hex()), zap.Error(err))
		}
	}
	return nil
}

func (s *JobServiceImpl) DeleteJob(ctx context.Context, id string) error {
	old, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	s.unregister(id)
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	_ = s.auditService.LogChange(ctx, common_models.AuditActionCron, auditModule, id, map[string]common_models.Change{
		"job": {Old: old, New: "DELETED"},
	})
	return nil
}

func (s *JobServiceImpl) RunJob(ctx context.Context, id string) (*JobRun, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, job, true)
}

func (s *JobServiceImpl) ListRuns(ctx context.Context, id string, limit int) ([]JobRun, error) {
	if _, err := objectID(id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListRuns(ctx, id, limit)
}

// execute runs a stored job through its handler and records the run.
func (s *JobServiceImpl) execute(ctx context.Context, job *ScheduledJob, manual bool) (*JobRun, error) {
	handler, ok := handlers[job.Kind]
	if !ok {
		return nil, errs.New(errs.Invalid, "unknown job kind %q", job.Kind)
	}

	run := &JobRun{
		JobID:     job.ID,
		JobName:   job.Name,
		Kind:      job.Kind,
		Manual:    manual,
		StartTime: time.Now(),
		Status:    RunRunning,
	}
	if err := s.repo.CreateRun(ctx, run); err != nil {
		s.logger.Warn("Failed to create job run", zap.String("job", job.Name), zap.Error(err))
	}
	_ = s.auditService.LogChange(ctx, common_models.AuditActionCron, auditModule, job.ID.Hex(), map[string]common_models.Change{
		"status": {New: "started"},
		"kind":   {New: job.Kind},
	})

	affected, output, execErr := handler(ctx, s.runner, job)

	end := time.Now()
	run.EndTime = &end
	run.Affected = affected
	run.Output = output
	run.Status = RunSuccess
	if execErr != nil {
		run.Status = RunFailed
		run.Error = execErr.Error()
	}

	done := context.WithoutCancel(ctx)
	if err := s.repo.UpdateRun(done, run); err != nil {
		s.logger.Warn("Failed to update job run", zap.String("job", job.Name), zap.Error(err))
	}
	_ = s.auditService.LogChange(done, common_models.AuditActionCron, auditModule, job.ID.Hex(), map[string]common_models.Change{
		"status":   {New: run.Status},
		"affected": {New: affected},
		"error":    {New: run.Error},
	})

	var next *time.Time
	if schedule, err := cron.ParseStandard(job.Schedule); err == nil {
		n := schedule.Next(end)
		next = &n
	}
	if err := s.repo.UpdateLastRun(done, job.ID, run.StartTime, next, run.Status); err != nil {
		s.logger.Warn("Failed to update last run", zap.String("job", job.Name), zap.Error(err))
	}

	s.logger.Info("Job finished",
		zap.String("job", job.Name),
		zap.String("kind", string(job.Kind)),
		zap.String("status", string(run.Status)),
		zap.Int("affected", affected),
		zap.Duration("took", end.Sub(run.StartTime)),
		zap.Error(execErr))
	return run, execErr
}

// Start loads the active jobs and the built-in maintenance jobs into a new
// cron scheduler. Overlapping runs of the same entry are skipped.
func (s *JobServiceImpl) Start(ctx context.Context) error {
	logger := cronLogger{s.logger.Sugar()}

	s.mu.Lock()
	s.base, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.scheduler = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s.mu.Unlock()

	if err := s.addBuiltIn("poll-tasks", s.pollSchedule, JobPollTasks); err != nil {
		return err
	}
	if err := s.addBuiltIn("collect-tasks", s.gcSchedule, JobCollectTasks); err != nil {
		return err
	}

	active := true
	jobs, err := s.repo.List(ctx, JobFilter{Active: &active})
	if err != nil {
		return fmt.Errorf("failed to load active jobs: %w", err)
	}
	for i := range jobs {
		if err := s.register(&jobs[i]); err != nil {
			s.logger.Warn("Failed to register job", zap.String("job", jobs[i].ID.Hex()), zap.Error(err))
		}
	}

	s.scheduler.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.scheduler.Entries())))
	return nil
}

func (s *JobServiceImpl) Stop() {
	s.mu.Lock()
	scheduler, cancel := s.scheduler, s.cancel
	s.mu.Unlock()
	if scheduler == nil {
		return
	}
	cancel()
	<-scheduler.Stop().Done()
}

// addBuiltIn schedules a maintenance job that is not stored. An empty
// schedule disables it.
func (s *JobServiceImpl) addBuiltIn(name, schedule string, kind JobKind) error {
	if schedule == "" {
		return nil
	}
	job := &ScheduledJob{Name: name, Kind: kind, Schedule: schedule}
	_, err := s.scheduler.AddFunc(schedule, func() {
		affected, _, err := handlers[kind](s.base, s.runner, job)
		if err != nil {
			s.logger.Error("Built-in job failed", zap.String("job", name), zap.Error(err))
			return
		}
		if affected > 0 {
			s.logger.Info("Built-in job finished", zap.String("job", name), zap.Int("affected", affected))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, schedule, err)
	}
	return nil
}

func (s *JobServiceImpl) register(job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil {
		return nil
	}

	id := job.ID.Hex()
	entryID, err := s.scheduler.AddFunc(job.Schedule, func() {
		// Reload so edits made since registration apply.
		latest, err := s.repo.GetByID(s.base, id)
		if err != nil || latest == nil || !latest.Active {
			return
		}
		s.execute(s.base, latest, false)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to scheduler: %w", err)
	}
	s.jobEntries[id] = entryID
	return nil
}

func (s *JobServiceImpl) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.jobEntries[id]; ok {
		s.scheduler.Remove(entryID)
		delete(s.jobEntries, id)
	}
}

// registered reports whether a stored job has a scheduler entry.
func (s *JobServiceImpl) registered(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobEntries[id]
	return ok
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
