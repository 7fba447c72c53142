package scheduler

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/config"
	"docsync/internal/features/audit"
	"docsync/internal/features/reconcile"
	"docsync/internal/features/source"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

type MockJobRepo struct {
	mu   sync.Mutex
	jobs map[primitive.ObjectID]ScheduledJob
	runs []JobRun
}

func NewMockJobRepo() *MockJobRepo {
	return &MockJobRepo{jobs: make(map[primitive.ObjectID]ScheduledJob)}
}

func (m *MockJobRepo) Create(ctx context.Context, job *ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = primitive.NewObjectID()
	job.CreatedAt = time.Now()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MockJobRepo) GetByID(ctx context.Context, id string) (*ScheduledJob, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[oid]; ok {
		return &job, nil
	}
	return nil, nil
}

func (m *MockJobRepo) List(ctx context.Context, filter JobFilter) ([]ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := []ScheduledJob{}
	for _, job := range m.jobs {
		if filter.Kind != "" && job.Kind != filter.Kind {
			continue
		}
		if filter.Active != nil && job.Active != *filter.Active {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}

func (m *MockJobRepo) Update(ctx context.Context, job *ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *MockJobRepo) Delete(ctx context.Context, id string) error {
	oid, _ := primitive.ObjectIDFromHex(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, oid)
	return nil
}

func (m *MockJobRepo) UpdateLastRun(ctx context.Context, id primitive.ObjectID, lastRun time.Time, nextRun *time.Time, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	job.LastRun = &lastRun
	job.NextRun = nextRun
	job.LastStatus = status
	m.jobs[id] = job
	return nil
}

func (m *MockJobRepo) CreateRun(ctx context.Context, run *JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = primitive.NewObjectID()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MockJobRepo) UpdateRun(ctx context.Context, run *JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = *run
		}
	}
	return nil
}

func (m *MockJobRepo) ListRuns(ctx context.Context, jobID string, limit int) ([]JobRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JobRun(nil), m.runs...), nil
}

func (m *MockJobRepo) EnsureIndexes(ctx context.Context) error { return nil }

type MockAuditService struct{}

func (MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	return nil
}

func (MockAuditService) ListLogs(ctx context.Context, filter audit.Filter, page, limit int64) (*audit.Page, error) {
	return nil, nil
}

// fakeReconcile records the calls the handlers make.
type fakeReconcile struct {
	reconcile.ReconcileService
	calls []string
	force bool
}

func (f *fakeReconcile) Reconcile(ctx context.Context, entityType string, force bool) (*reconcile.RunLog, error) {
	f.calls = append(f.calls, "reconcile:"+entityType)
	f.force = force
	return &reconcile.RunLog{EntityType: entityType, Status: reconcile.RunSuccess, Counts: reconcile.Counts{Submitted: 3, Deleted: 1}}, nil
}

func (f *fakeReconcile) Verify(ctx context.Context, entityType string) (*reconcile.RunLog, error) {
	f.calls = append(f.calls, "verify:"+entityType)
	return &reconcile.RunLog{EntityType: entityType, Status: reconcile.RunSuccess, Counts: reconcile.Counts{Indexed: 4, NotFound: 1}}, nil
}

func (f *fakeReconcile) ReconcileAll(ctx context.Context, force bool) ([]reconcile.RunLog, error) {
	f.calls = append(f.calls, "reconcile_all")
	return []reconcile.RunLog{{Counts: reconcile.Counts{Submitted: 2}}, {Counts: reconcile.Counts{Deleted: 1}}}, nil
}

type fakeTasks struct {
	polled, collected int
	minAge            time.Duration
}

func (f *fakeTasks) Poll(ctx context.Context) (int, error) {
	f.polled++
	return 2, nil
}

func (f *fakeTasks) Collect(ctx context.Context, minAge time.Duration) (int, error) {
	f.collected++
	f.minAge = minAge
	return 5, nil
}

type fakeSources struct {
	model string
	limit int
	err   error
}

func (f *fakeSources) PullOdoo(ctx context.Context, entityType, model string) (*source.PullResult, error) {
	f.model = model
	return &source.PullResult{EntityType: entityType, Read: 10, Created: 2, Changed: 3}, f.err
}

func (f *fakeSources) PullRemote(ctx context.Context, entityType string, limit int) (*source.PullResult, error) {
	f.limit = limit
	return &source.PullResult{EntityType: entityType, Read: 4, Changed: 1}, f.err
}

type fixture struct {
	svc     *JobServiceImpl
	repo    *MockJobRepo
	rec     *fakeReconcile
	tasks   *fakeTasks
	sources *fakeSources
}

func newFixture(t *testing.T, poll, gc string) *fixture {
	t.Helper()
	f := &fixture{
		repo:    NewMockJobRepo(),
		rec:     &fakeReconcile{},
		tasks:   &fakeTasks{},
		sources: &fakeSources{},
	}
	runner := &Runner{Reconcile: f.rec, Tasks: f.tasks, Sources: f.sources, GCMinAge: time.Hour}
	cfg := &config.Config{PollSchedule: poll, GCSchedule: gc}
	f.svc = NewJobService(f.repo, runner, MockAuditService{}, cfg, zaptest.NewLogger(t)).(*JobServiceImpl)
	return f
}

func TestHandlerTableCoversEveryKind(t *testing.T) {
	for _, k := range Kinds {
		if !k.Valid() {
			t.Errorf("no handler for %s", k)
		}
	}
	if len(handlers) != len(Kinds) {
		t.Errorf("handler table has %d entries, %d kinds", len(handlers), len(Kinds))
	}
	if JobKind("cmd_shell").Valid() {
		t.Error("unknown kinds must be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		job  ScheduledJob
		ok   bool
	}{
		{"reconcile", ScheduledJob{Name: "nightly", Kind: JobReconcile, EntityType: "product", Schedule: "0 2 * * *"}, true},
		{"descriptor", ScheduledJob{Name: "poll", Kind: JobPollTasks, Schedule: "@every 30s"}, true},
		{"no name", ScheduledJob{Kind: JobPollTasks, Schedule: "@hourly"}, false},
		{"unknown kind", ScheduledJob{Name: "x", Kind: "send_email", Schedule: "@hourly"}, false},
		{"missing entity type", ScheduledJob{Name: "x", Kind: JobVerify, Schedule: "@hourly"}, false},
		{"bad schedule", ScheduledJob{Name: "x", Kind: JobReconcileAll, Schedule: "every day"}, false},
		{"negative limit", ScheduledJob{Name: "x", Kind: JobPullRemote, EntityType: "product", Limit: -1, Schedule: "@daily"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validate(&tt.job)
			if tt.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tt.ok && !errs.Is(err, errs.Invalid) {
				t.Errorf("expected Invalid, got %v", err)
			}
		})
	}
}

func TestSchedulerRegistration(t *testing.T) {
	f := newFixture(t, "@every 1m", "@hourly")
	ctx := context.Background()

	stored := &ScheduledJob{Name: "stored", Kind: JobReconcileAll, Schedule: "@daily", Active: true}
	f.repo.Create(ctx, stored)

	if err := f.svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer f.svc.Stop()

	if n := len(f.svc.scheduler.Entries()); n != 3 {
		t.Fatalf("expected 2 built-in and 1 stored entry, got %d", n)
	}
	if !f.svc.registered(stored.ID.Hex()) {
		t.Error("active stored job should be registered at start")
	}

	job := &ScheduledJob{Name: "verify products", Kind: JobVerify, EntityType: "product", Schedule: "*/5 * * * *", Active: true}
	if err := f.svc.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if !f.svc.registered(job.ID.Hex()) || job.NextRun == nil {
		t.Error("created job should be scheduled")
	}

	job.Active = false
	if err := f.svc.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if f.svc.registered(job.ID.Hex()) {
		t.Error("inactive job should be removed from the scheduler")
	}

	if err := f.svc.DeleteJob(ctx, stored.ID.Hex()); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if f.svc.registered(stored.ID.Hex()) {
		t.Error("deleted job should be removed from the scheduler")
	}
	if n := len(f.svc.scheduler.Entries()); n != 2 {
		t.Errorf("expected only the built-in entries left, got %d", n)
	}
}

func TestBuiltInJobsFollowConfig(t *testing.T) {
	f := newFixture(t, "", "")
	if err := f.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if n := len(f.svc.scheduler.Entries()); n != 0 {
		t.Errorf("empty schedules disable the built-in jobs, got %d entries", n)
	}
	f.svc.Stop()

	bad := newFixture(t, "sometimes", "")
	if err := bad.svc.Start(context.Background()); err == nil {
		t.Error("expected an error for an invalid poll schedule")
		bad.svc.Stop()
	}
}

func TestRunJobDispatchesByKind(t *testing.T) {
	f := newFixture(t, "", "")
	ctx := context.Background()

	tests := []struct {
		job      ScheduledJob
		affected int
		check    func(t *testing.T)
	}{
		{
			ScheduledJob{Name: "a", Kind: JobReconcile, EntityType: "product", Force: true, Schedule: "@daily"}, 4,
			func(t *testing.T) {
				if !f.rec.force || f.rec.calls[len(f.rec.calls)-1] != "reconcile:product" {
					t.Errorf("reconcile not forwarded: %v force=%v", f.rec.calls, f.rec.force)
				}
			},
		},
		{ScheduledJob{Name: "b", Kind: JobVerify, EntityType: "country", Schedule: "@daily"}, 5, nil},
		{ScheduledJob{Name: "c", Kind: JobReconcileAll, Schedule: "@daily"}, 3, nil},
		{ScheduledJob{Name: "d", Kind: JobPollTasks, Schedule: "@daily"}, 2, nil},
		{
			ScheduledJob{Name: "e", Kind: JobCollectTasks, Schedule: "@daily"}, 5,
			func(t *testing.T) {
				if f.tasks.minAge != time.Hour {
					t.Errorf("collect min age = %s", f.tasks.minAge)
				}
			},
		},
		{
			ScheduledJob{Name: "f", Kind: JobPullOdoo, EntityType: "product", Model: "product.template", Schedule: "@daily"}, 5,
			func(t *testing.T) {
				if f.sources.model != "product.template" {
					t.Errorf("model = %q", f.sources.model)
				}
			},
		},
		{
			ScheduledJob{Name: "g", Kind: JobPullRemote, EntityType: "product", Limit: 50, Schedule: "@daily"}, 1,
			func(t *testing.T) {
				if f.sources.limit != 50 {
					t.Errorf("limit = %d", f.sources.limit)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(string(tt.job.Kind), func(t *testing.T) {
			job := tt.job
			if err := f.svc.CreateJob(ctx, &job); err != nil {
				t.Fatalf("CreateJob() error = %v", err)
			}
			run, err := f.svc.RunJob(ctx, job.ID.Hex())
			if err != nil {
				t.Fatalf("RunJob() error = %v", err)
			}
			if run.Status != RunSuccess || run.Affected != tt.affected || !run.Manual {
				t.Errorf("unexpected run %+v", run)
			}
			if tt.check != nil {
				tt.check(t)
			}
			stored, _ := f.svc.GetJob(ctx, job.ID.Hex())
			if stored.LastRun == nil || stored.LastStatus != RunSuccess {
				t.Errorf("last run not recorded: %+v", stored)
			}
		})
	}
}

func TestRunJobRecordsFailure(t *testing.T) {
	f := newFixture(t, "", "")
	ctx := context.Background()
	f.sources.err = errs.New(errs.RemoteUnavailable, "kardex is down")

	job := &ScheduledJob{Name: "pull", Kind: JobPullRemote, EntityType: "product", Schedule: "@hourly", Active: true}
	f.svc.CreateJob(ctx, job)

	run, err := f.svc.RunJob(ctx, job.ID.Hex())
	if !errs.Is(err, errs.RemoteUnavailable) {
		t.Fatalf("expected RemoteUnavailable, got %v", err)
	}
	if run == nil || run.Status != RunFailed || run.Error == "" {
		t.Fatalf("failure not recorded: %+v", run)
	}

	runs, _ := f.svc.ListRuns(ctx, job.ID.Hex(), 0)
	if len(runs) != 1 || runs[0].Status != RunFailed {
		t.Errorf("stored runs = %+v", runs)
	}
}

func TestJobLookups(t *testing.T) {
	f := newFixture(t, "", "")
	ctx := context.Background()

	if _, err := f.svc.GetJob(ctx, "nope"); !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid, got %v", err)
	}
	if _, err := f.svc.RunJob(ctx, primitive.NewObjectID().Hex()); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if err := f.svc.DeleteJob(ctx, primitive.NewObjectID().Hex()); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}
