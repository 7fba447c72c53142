package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"docsync/internal/common/errs"
	common_models "docsync/internal/common/models"
	"docsync/internal/features/audit"
	"docsync/internal/features/definition"
	"docsync/internal/features/entity"
	"docsync/internal/features/remote"
	"docsync/internal/features/task"
	"docsync/internal/logger"
	"docsync/pkg/batch"
	"docsync/pkg/fixer"
	"docsync/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	auditModule     = "entities"
	noIndexResponse = "Index not found"
)

// DefinitionResolver is the part of the definition service a run needs.
type DefinitionResolver interface {
	Resolve(ctx context.Context, entityType string) (*definition.Definition, error)
	EntityTypes(ctx context.Context) ([]string, error)
}

type ReconcileService interface {
	// Reconcile pushes the entities of a type to the remote of its definition.
	Reconcile(ctx context.Context, entityType string, force bool) (*RunLog, error)
	// Verify looks every entity of a type up on the remote and records what it finds.
	Verify(ctx context.Context, entityType string) (*RunLog, error)
	// ReconcileAll reconciles every configured entity type concurrently.
	ReconcileAll(ctx context.Context, force bool) ([]RunLog, error)

	VerifyOne(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error)
	SyncOne(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error)
	Unindex(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error)
	// DeleteEntity removes the entity from the remote first; the local row is
	// dropped once that delete succeeds, or immediately when nothing is indexed.
	DeleteEntity(ctx context.Context, entityType string, entityID int64) error

	ListLogs(ctx context.Context, entityType string, limit int64) ([]RunLog, error)
}

type ReconcileServiceImpl struct {
	Definitions  DefinitionResolver
	Entities     entity.EntityRepository
	Tracker      *task.Tracker
	Remotes      remote.Resolver
	Logs         RunLogRepository
	AuditService audit.AuditService
	Logger       *zap.Logger
	WriteSize    int
	SearchSize   int

	types utils.KeyedMutex
}

func NewReconcileService(defs definition.DefinitionService, entities entity.EntityRepository, tracker *task.Tracker, remotes remote.Resolver, logs RunLogRepository, auditService audit.AuditService, logger *zap.Logger) ReconcileService {
	return &ReconcileServiceImpl{
		Definitions:  defs,
		Entities:     entities,
		Tracker:      tracker,
		Remotes:      remotes,
		Logs:         logs,
		AuditService: auditService,
		Logger:       logger,
		WriteSize:    batch.WriteSize,
		SearchSize:   batch.SearchSize,
	}
}

// target bundles what a run needs to talk to the remote of a definition.
type target struct {
	def    *definition.Definition
	client remote.Client
	coll   remote.Collection
	fields fixer.FieldMap
	filter *definition.Filter
}

func (s *ReconcileServiceImpl) target(ctx context.Context, entityType string) (*target, error) {
	def, err := s.Definitions.Resolve(ctx, entityType)
	if err != nil {
		return nil, err
	}
	fields, err := def.Fields()
	if err != nil {
		return nil, err
	}
	coll, err := def.RemoteCollection()
	if err != nil {
		return nil, err
	}
	filter, err := definition.CompileFilter(def.Filter)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "definition %q", def.Name)
	}
	client, err := s.Remotes.Client(def.Remote)
	if err != nil {
		return nil, err
	}
	return &target{def: def, client: client, coll: coll, fields: fields, filter: filter}, nil
}

func (s *ReconcileServiceImpl) Reconcile(ctx context.Context, entityType string, force bool) (*RunLog, error) {
	unlock := s.types.Lock(entityType)
	defer unlock()

	run := s.startRun(ctx, entityType, RunReconcile, force)
	err := s.reconcile(ctx, run, force)
	s.finishRun(ctx, run, err)
	return run, err
}

func (s *ReconcileServiceImpl) reconcile(ctx context.Context, run *RunLog, force bool) error {
	tg, err := s.target(ctx, run.EntityType)
	if errs.Is(err, errs.NoIndexConfigured) {
		return s.markNoIndex(ctx, run, err)
	}
	if err != nil {
		return err
	}

	entities, err := s.Entities.ListByType(ctx, run.EntityType)
	if err != nil {
		return err
	}
	run.Counts.Entities = len(entities)

	var adds []pendingDoc
	var deletes []int64
	ops := make(map[primitive.ObjectID]remote.Operation)
	for i := range entities {
		e := &entities[i]

		if e.PendingDelete {
			if onRemote(e) {
				deletes = append(deletes, e.EntityID)
			} else if err := s.Entities.Delete(ctx, e.EntityType, e.EntityID); err != nil {
				return err
			}
			continue
		}

		match, err := tg.filter.Match(ctx, e.Values())
		if err != nil {
			s.markError(ctx, run, []int64{e.EntityID}, fmt.Sprintf("filter: %v", err))
			continue
		}
		if !match {
			if onRemote(e) {
				deletes = append(deletes, e.EntityID)
			}
			continue
		}

		doc, err := tg.fields.Serialize(e.Values(), tg.def.PrimaryKey)
		if err != nil {
			s.markError(ctx, run, []int64{e.EntityID}, err.Error())
			continue
		}
		if !force && upToDate(e, doc, s.pendingOperation(ctx, e, ops)) {
			run.Counts.Skipped++
			continue
		}
		adds = append(adds, pendingDoc{id: e.EntityID, doc: doc})
	}

	for chunk := range batch.Slices(adds, s.WriteSize) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.submitAdds(ctx, run, tg, chunk)
	}
	for chunk := range batch.Slices(deletes, s.WriteSize) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.submitDeletes(ctx, run, tg, chunk)
	}
	return nil
}

type pendingDoc struct {
	id  int64
	doc fixer.Document
}

// onRemote reports whether the remote may hold a document for e.
func onRemote(e *entity.Entity) bool {
	switch e.IndexResult {
	case entity.ResultIndexed:
		return true
	case entity.ResultNotFound, entity.ResultNoIndex:
		return false
	}
	return e.IndexDocument != nil
}

// upToDate reports whether doc was already submitted and nothing changed
// since. pending is the operation of the task e is queued on; an entity
// queued for deletion is never up to date.
func upToDate(e *entity.Entity, doc fixer.Document, pending remote.Operation) bool {
	if e.Dirty {
		return false
	}
	switch e.IndexResult {
	case entity.ResultIndexed:
	case entity.ResultQueued:
		if pending == remote.OpDelete {
			return false
		}
	default:
		return false
	}
	return fixer.Equal(doc, e.IndexDocument)
}

// pendingOperation returns the operation of the task a queued entity waits
// on. Entities queued without a task count as adds. ops caches lookups for
// one run.
func (s *ReconcileServiceImpl) pendingOperation(ctx context.Context, e *entity.Entity, ops map[primitive.ObjectID]remote.Operation) remote.Operation {
	if e.IndexResult != entity.ResultQueued || e.TaskID == nil {
		return remote.OpAddOrUpdate
	}
	if op, ok := ops[*e.TaskID]; ok {
		return op
	}
	op := remote.OpDelete
	tk, err := s.Tracker.Get(ctx, e.TaskID.Hex())
	if err == nil {
		op = tk.Operation
	} else {
		// Unknown fate: resubmitting is harmless for an add.
		s.Logger.Debug("Task of queued entity not found", logger.EntityType(e.EntityType), zap.Int64("entity", e.EntityID), zap.Error(err))
	}
	ops[*e.TaskID] = op
	return op
}

func (s *ReconcileServiceImpl) submitAdds(ctx context.Context, run *RunLog, tg *target, chunk []pendingDoc) {
	ids := make([]int64, len(chunk))
	docs := make([]fixer.Document, len(chunk))
	queued := make(map[int64]entity.StateUpdate, len(chunk))
	for i, p := range chunk {
		ids[i] = p.id
		docs[i] = p.doc
		queued[p.id] = entity.StateUpdate{Result: entity.ResultQueued, Document: p.doc, DetachTask: true}
	}
	if err := s.Entities.SetStates(ctx, run.EntityType, queued); err != nil {
		s.markError(ctx, run, ids, err.Error())
		return
	}

	handle, err := tg.client.SubmitBatch(ctx, tg.coll, remote.OpAddOrUpdate, docs)
	if !s.accepted(ctx, run, ids, err) {
		return
	}
	run.Counts.Batches++
	run.Counts.Submitted += len(ids)

	if _, err := s.Tracker.Track(ctx, tg.def, remote.OpAddOrUpdate, handle, ids); err != nil {
		s.Logger.Error("Failed to track batch", logger.EntityType(run.EntityType), logger.TaskUID(handle.UID), zap.Error(err))
	}
}

func (s *ReconcileServiceImpl) submitDeletes(ctx context.Context, run *RunLog, tg *target, ids []int64) {
	if err := s.Entities.SetState(ctx, run.EntityType, ids, entity.StateUpdate{Result: entity.ResultQueued, DetachTask: true}); err != nil {
		s.markError(ctx, run, ids, err.Error())
		return
	}

	handle, err := tg.client.DeleteBatch(ctx, tg.coll, ids)
	if !s.accepted(ctx, run, ids, err) {
		return
	}
	run.Counts.Batches++
	run.Counts.Deleted += len(ids)

	if _, err := s.Tracker.Track(ctx, tg.def, remote.OpDelete, handle, ids); err != nil {
		s.Logger.Error("Failed to track batch", logger.EntityType(run.EntityType), logger.TaskUID(handle.UID), zap.Error(err))
	}
}

// accepted records the outcome of a failed submission on the batch's
// entities. A timed out batch stays queued without a task: its fate is
// unknown until the next verify.
func (s *ReconcileServiceImpl) accepted(ctx context.Context, run *RunLog, ids []int64, err error) bool {
	if err == nil {
		return true
	}
	if remote.IsTimeout(err) {
		run.Counts.TimedOut += len(ids)
		s.Logger.Warn("Batch timed out, outcome unknown",
			logger.EntityType(run.EntityType),
			zap.Int64s("ids", ids),
			zap.Error(err))
		return false
	}

	s.Logger.Error("Batch failed",
		logger.EntityType(run.EntityType),
		zap.String("kind", string(errs.KindOf(err))),
		zap.Int("entities", len(ids)),
		zap.Error(err))
	s.markError(ctx, run, ids, err.Error())
	return false
}

func (s *ReconcileServiceImpl) markError(ctx context.Context, run *RunLog, ids []int64, detail string) {
	run.Counts.Errors += len(ids)
	if err := s.Entities.SetState(ctx, run.EntityType, ids, entity.StateUpdate{
		Result:     entity.ResultError,
		Response:   detail,
		DetachTask: true,
	}); err != nil {
		s.Logger.Error("Failed to record entity error", logger.EntityType(run.EntityType), zap.Error(err))
	}
}

func (s *ReconcileServiceImpl) markNoIndex(ctx context.Context, run *RunLog, cause error) error {
	n, err := s.Entities.SetTypeState(ctx, run.EntityType, entity.StateUpdate{
		Result:     entity.ResultNoIndex,
		Response:   noIndexResponse,
		DetachTask: true,
	})
	if err != nil {
		return err
	}
	run.Counts.NoIndex = int(n)
	return cause
}

func (s *ReconcileServiceImpl) Verify(ctx context.Context, entityType string) (*RunLog, error) {
	unlock := s.types.Lock(entityType)
	defer unlock()

	run := s.startRun(ctx, entityType, RunVerify, false)
	err := s.verify(ctx, run)
	s.finishRun(ctx, run, err)
	return run, err
}

func (s *ReconcileServiceImpl) verify(ctx context.Context, run *RunLog) error {
	tg, err := s.target(ctx, run.EntityType)
	if errs.Is(err, errs.NoIndexConfigured) {
		return s.markNoIndex(ctx, run, err)
	}
	if err != nil {
		return err
	}

	entities, err := s.Entities.ListByType(ctx, run.EntityType)
	if err != nil {
		return err
	}
	run.Counts.Entities = len(entities)

	checkable := make([]entity.Entity, 0, len(entities))
	for _, e := range entities {
		if e.IndexResult != entity.ResultError && e.IndexResult != entity.ResultNoIndex && !e.PendingDelete {
			checkable = append(checkable, e)
		}
	}

	open := newOpenTasks(s.Tracker)
	for chunk := range batch.Slices(checkable, s.SearchSize) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.verifyBatch(ctx, run, tg, chunk, open); err != nil {
			run.Counts.Errors += len(chunk)
			s.Logger.Warn("Verify batch failed", logger.EntityType(run.EntityType), zap.Error(err))
		}
	}
	return nil
}

func (s *ReconcileServiceImpl) verifyBatch(ctx context.Context, run *RunLog, tg *target, chunk []entity.Entity, open *openTasks) error {
	ids := make([]int64, len(chunk))
	for i, e := range chunk {
		ids[i] = e.EntityID
	}

	found, err := tg.client.FetchByIDs(ctx, tg.coll, ids)
	if err != nil {
		return err
	}

	updates := make(map[int64]entity.StateUpdate)
	for i := range chunk {
		e := &chunk[i]
		if doc, ok := found[e.EntityID]; ok {
			body, _ := json.Marshal(doc)
			updates[e.EntityID] = entity.StateUpdate{Result: entity.ResultIndexed, Response: string(body)}
			run.Counts.Indexed++
			continue
		}

		missing := e.IndexResult == entity.ResultIndexed ||
			(e.IndexResult == entity.ResultQueued && !open.outstanding(ctx, e.TaskID))
		if missing {
			updates[e.EntityID] = entity.StateUpdate{
				Result:   entity.ResultNotFound,
				Response: fmt.Sprintf("document %d not found in %s", e.EntityID, tg.coll.Name),
			}
			run.Counts.NotFound++
		}
	}
	return s.Entities.SetStates(ctx, run.EntityType, updates)
}

// openTasks caches whether the tasks seen during a verify are still running.
type openTasks struct {
	tracker *task.Tracker
	seen    map[primitive.ObjectID]bool
}

func newOpenTasks(tracker *task.Tracker) *openTasks {
	return &openTasks{tracker: tracker, seen: make(map[primitive.ObjectID]bool)}
}

func (o *openTasks) outstanding(ctx context.Context, id *primitive.ObjectID) bool {
	if id == nil {
		return false
	}
	if open, ok := o.seen[*id]; ok {
		return open
	}
	t, err := o.tracker.Get(ctx, id.Hex())
	open := err == nil && !t.Status.Terminal()
	o.seen[*id] = open
	return open
}

func (s *ReconcileServiceImpl) ReconcileAll(ctx context.Context, force bool) ([]RunLog, error) {
	types, err := s.Definitions.EntityTypes(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	runs := make([]RunLog, 0, len(types))
	var failures []error

	g, gctx := errgroup.WithContext(ctx)
	for _, entityType := range types {
		g.Go(func() error {
			run, err := s.Reconcile(gctx, entityType, force)
			mu.Lock()
			defer mu.Unlock()
			if run != nil {
				runs = append(runs, *run)
			}
			if err != nil && !errs.Is(err, errs.NoIndexConfigured) {
				failures = append(failures, fmt.Errorf("%s: %w", entityType, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runs, err
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].EntityType < runs[j].EntityType })
	return runs, errors.Join(failures...)
}

func (s *ReconcileServiceImpl) VerifyOne(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error) {
	unlock := s.types.Lock(entityType)
	defer unlock()

	e, tg, err := s.loadOne(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	run := &RunLog{EntityType: entityType, Kind: RunVerify}
	if err := s.verifyBatch(ctx, run, tg, []entity.Entity{*e}, newOpenTasks(s.Tracker)); err != nil {
		return nil, err
	}
	return s.Entities.Get(ctx, entityType, entityID)
}

func (s *ReconcileServiceImpl) SyncOne(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error) {
	unlock := s.types.Lock(entityType)
	defer unlock()

	e, tg, err := s.loadOne(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	match, err := tg.filter.Match(ctx, e.Values())
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "filter")
	}
	if !match {
		return nil, errs.New(errs.Invalid, "%s %d does not match the definition filter", entityType, entityID)
	}
	doc, err := tg.fields.Serialize(e.Values(), tg.def.PrimaryKey)
	if err != nil {
		return nil, err
	}

	run := &RunLog{EntityType: entityType, Kind: RunReconcile}
	s.submitAdds(ctx, run, tg, []pendingDoc{{id: entityID, doc: doc}})
	return s.afterSingle(ctx, run, entityType, entityID)
}

func (s *ReconcileServiceImpl) Unindex(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error) {
	unlock := s.types.Lock(entityType)
	defer unlock()

	_, tg, err := s.loadOne(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	run := &RunLog{EntityType: entityType, Kind: RunReconcile}
	s.submitDeletes(ctx, run, tg, []int64{entityID})
	e, err := s.afterSingle(ctx, run, entityType, entityID)
	if err == nil {
		_ = s.AuditService.LogChange(ctx, common_models.AuditActionSync, auditModule, fmt.Sprintf("%s/%d", entityType, entityID), map[string]common_models.Change{
			"index": {Old: tg.coll.Name, New: "REMOVED"},
		})
	}
	return e, err
}

func (s *ReconcileServiceImpl) DeleteEntity(ctx context.Context, entityType string, entityID int64) (err error) {
	unlock := s.types.Lock(entityType)
	defer unlock()

	e, err := s.Entities.Get(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	if e == nil {
		return errs.New(errs.NotFound, "%s %d not found", entityType, entityID)
	}
	defer func() {
		if err != nil {
			return
		}
		_ = s.AuditService.LogChange(ctx, common_models.AuditActionDelete, auditModule, fmt.Sprintf("%s/%d", entityType, entityID), map[string]common_models.Change{
			"entity": {Old: e.Fields, New: "DELETED"},
		})
	}()

	if !onRemote(e) {
		return s.Entities.Delete(ctx, entityType, entityID)
	}

	tg, err := s.target(ctx, entityType)
	if errs.Is(err, errs.NoIndexConfigured) {
		return s.Entities.Delete(ctx, entityType, entityID)
	}
	if err != nil {
		return err
	}

	e.PendingDelete = true
	if err := s.Entities.Save(ctx, e); err != nil {
		return err
	}

	run := &RunLog{EntityType: entityType, Kind: RunReconcile}
	s.submitDeletes(ctx, run, tg, []int64{entityID})
	if _, err := s.afterSingle(ctx, run, entityType, entityID); err != nil && !errs.Is(err, errs.NotFound) {
		return err
	}
	return nil
}

func (s *ReconcileServiceImpl) loadOne(ctx context.Context, entityType string, entityID int64) (*entity.Entity, *target, error) {
	e, err := s.Entities.Get(ctx, entityType, entityID)
	if err != nil {
		return nil, nil, err
	}
	if e == nil {
		return nil, nil, errs.New(errs.NotFound, "%s %d not found", entityType, entityID)
	}
	tg, err := s.target(ctx, entityType)
	if err != nil {
		return nil, nil, err
	}
	return e, tg, nil
}

// afterSingle reloads an entity after a one-entity submission and turns a
// recorded failure into an error for the caller.
func (s *ReconcileServiceImpl) afterSingle(ctx context.Context, run *RunLog, entityType string, entityID int64) (*entity.Entity, error) {
	e, err := s.Entities.Get(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errs.New(errs.NotFound, "%s %d not found", entityType, entityID)
	}
	switch {
	case run.Counts.Errors > 0:
		return e, errs.New(errs.RemoteRejected, "%s", e.IndexResponse)
	case run.Counts.TimedOut > 0:
		return e, errs.New(errs.RemoteUnavailable, "remote timed out; outcome unknown until verified")
	}
	return e, nil
}

func (s *ReconcileServiceImpl) ListLogs(ctx context.Context, entityType string, limit int64) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Logs.List(ctx, entityType, limit)
}

func (s *ReconcileServiceImpl) startRun(ctx context.Context, entityType string, kind RunKind, force bool) *RunLog {
	run := &RunLog{
		EntityType: entityType,
		Kind:       kind,
		Force:      force,
		Status:     RunRunning,
		StartTime:  time.Now(),
	}
	if err := s.Logs.Create(ctx, run); err != nil {
		s.Logger.Warn("Failed to store run log", logger.EntityType(entityType), zap.Error(err))
	}
	return run
}

func (s *ReconcileServiceImpl) finishRun(ctx context.Context, run *RunLog, err error) {
	run.EndTime = time.Now()
	switch {
	case errs.Is(err, errs.NoIndexConfigured):
		run.Status = RunNoIndex
		run.Error = err.Error()
	case err != nil:
		run.Status = RunFailed
		run.Error = err.Error()
	case run.Counts.Errors > 0 || run.Counts.TimedOut > 0:
		run.Status = RunPartial
	default:
		run.Status = RunSuccess
	}

	// Record the outcome even when the run was canceled.
	if uerr := s.Logs.Update(context.WithoutCancel(ctx), run); uerr != nil {
		s.Logger.Warn("Failed to update run log", logger.EntityType(run.EntityType), zap.Error(uerr))
	}

	s.Logger.Info("Run finished",
		logger.EntityType(run.EntityType),
		zap.String("kind", string(run.Kind)),
		zap.String("status", string(run.Status)),
		zap.Duration("took", run.EndTime.Sub(run.StartTime)),
		zap.Int("submitted", run.Counts.Submitted),
		zap.Int("deleted", run.Counts.Deleted),
		zap.Int("skipped", run.Counts.Skipped),
		zap.Int("errors", run.Counts.Errors),
		zap.Int("timed_out", run.Counts.TimedOut))
}
