package task

import (
	"context"
	"fmt"
	"time"

	"docsync/internal/common/errs"
	"docsync/internal/features/definition"
	"docsync/internal/features/entity"
	"docsync/internal/features/remote"
	"docsync/internal/logger"
	"docsync/pkg/utils"

	"go.uber.org/zap"
)

// Tracker records the operations handed to remotes and moves the attached
// entities once an operation settles.
type Tracker struct {
	Repo     TaskRepository
	Entities entity.EntityRepository
	Remotes  remote.Resolver
	Notifier Notifier
	Logger   *zap.Logger

	locks utils.KeyedMutex
}

func NewTracker(repo TaskRepository, entities entity.EntityRepository, remotes remote.Resolver, notifier Notifier, logger *zap.Logger) *Tracker {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Tracker{
		Repo:     repo,
		Entities: entities,
		Remotes:  remotes,
		Notifier: notifier,
		Logger:   logger,
	}
}

// Track creates the task for an accepted handle and attaches entityIDs to
// it. A handle that is already terminal is settled right away.
func (t *Tracker) Track(ctx context.Context, def *definition.Definition, op remote.Operation, handle *remote.Handle, entityIDs []int64) (*Task, error) {
	task := &Task{
		Name:         fmt.Sprintf("%s %s (%d)", op, def.EntityType, len(entityIDs)),
		Operation:    op,
		Remote:       def.Remote,
		UID:          handle.UID,
		Status:       remote.StatusEnqueued,
		DefinitionID: def.ID,
		EntityType:   def.EntityType,
		Collection:   def.Collection,
		EntityCount:  len(entityIDs),
	}
	if err := t.Repo.Create(ctx, task); err != nil {
		return nil, err
	}

	id := task.ID.Hex()
	unlock := t.locks.Lock(id)
	defer unlock()

	enqueuedAt := handle.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = task.CreatedAt
	}
	err := t.Entities.SetState(ctx, def.EntityType, entityIDs, entity.StateUpdate{
		Result: entity.ResultQueued,
		Date:   &enqueuedAt,
		TaskID: &task.ID,
	})
	if err != nil {
		return task, err
	}

	t.Logger.Debug("Tracking task",
		logger.EntityType(def.EntityType),
		logger.TaskUID(handle.UID),
		zap.String("operation", string(op)),
		zap.Int("entities", len(entityIDs)))

	// A webhook or poll may have settled the task before its entities were attached.
	current, err := t.Repo.GetByID(ctx, id)
	if err != nil {
		return task, err
	}
	if current != nil && current.Status.Terminal() {
		return current, t.settle(ctx, current)
	}

	if handle.Status != remote.StatusEnqueued && handle.Status.Valid() {
		return t.transitionLocked(ctx, id, handle.Status, handle.Detail)
	}
	return task, nil
}

// ApplyExternalStatus applies a status reported by the remote (webhook or
// poll) to the task with the given uid. Signals for a task that already
// settled are ignored.
func (t *Tracker) ApplyExternalStatus(ctx context.Context, kind remote.Kind, uid int64, status remote.Status, detail string) (*Task, error) {
	if !status.Valid() {
		return nil, errs.New(errs.Invalid, "unknown task status %q", status)
	}

	task, err := t.Repo.GetByUID(ctx, kind, uid)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errs.New(errs.NotFound, "no %s task with uid %d", kind, uid)
	}
	return t.transition(ctx, task.ID.Hex(), status, detail)
}

func (t *Tracker) transition(ctx context.Context, id string, status remote.Status, detail string) (*Task, error) {
	unlock := t.locks.Lock(id)
	defer unlock()
	return t.transitionLocked(ctx, id, status, detail)
}

// transitionLocked expects the caller to hold the lock of task id.
func (t *Tracker) transitionLocked(ctx context.Context, id string, status remote.Status, detail string) (*Task, error) {
	task, err := t.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errs.New(errs.NotFound, "task %s not found", id)
	}
	if !task.Status.CanMoveTo(status) {
		return task, nil
	}

	ok, err := t.Repo.UpdateStatus(ctx, task.ID, task.Status, status, detail)
	if err != nil {
		return nil, err
	}
	if !ok {
		return t.Repo.GetByID(ctx, id)
	}
	task.Status = status
	task.Response = detail

	if status.Terminal() {
		if err := t.settle(ctx, task); err != nil {
			return task, err
		}
	}

	t.Notifier.Notify(Event{
		TaskID:     task.ID.Hex(),
		UID:        task.UID,
		Remote:     task.Remote,
		EntityType: task.EntityType,
		Operation:  task.Operation,
		Status:     task.Status,
		Response:   task.Response,
		At:         time.Now().UTC(),
	})
	return task, nil
}

// settle moves the entities still attached to a terminal task.
func (t *Tracker) settle(ctx context.Context, task *Task) error {
	log := t.Logger.With(logger.EntityType(task.EntityType), logger.TaskUID(task.UID))

	if task.Status == remote.StatusFailed {
		n, err := t.Entities.SetStateForTask(ctx, task.ID, entity.StateUpdate{
			Result:   entity.ResultError,
			Response: task.Response,
		})
		log.Warn("Task failed", zap.String("response", task.Response), zap.Int64("entities", n))
		return err
	}

	if task.Operation == remote.OpDelete {
		removed, err := t.Entities.DeletePendingForTask(ctx, task.ID)
		if err != nil {
			return err
		}
		cleared, err := t.Entities.SetStateForTask(ctx, task.ID, entity.StateUpdate{Clear: true})
		log.Info("Delete task succeeded", zap.Int64("removed", removed), zap.Int64("cleared", cleared))
		return err
	}

	n, err := t.Entities.SetStateForTask(ctx, task.ID, entity.StateUpdate{
		Result:   entity.ResultIndexed,
		Response: task.Response,
	})
	log.Info("Task succeeded", zap.Int64("entities", n))
	return err
}

// PollOne asks the remote for the status of a single task.
func (t *Tracker) PollOne(ctx context.Context, id string) (*Task, error) {
	task, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	client, err := t.Remotes.Client(task.Remote)
	if err != nil {
		return nil, err
	}
	status, detail, err := client.GetOperationStatus(ctx, task.UID)
	if errs.Is(err, errs.NotFound) {
		// The remote pruned or never knew the task; its outcome is lost.
		return t.transition(ctx, id, remote.StatusFailed, "task unknown to remote")
	}
	if err != nil {
		return nil, err
	}
	return t.transition(ctx, id, status, detail)
}

// Poll refreshes every open task and returns how many reached a terminal status.
func (t *Tracker) Poll(ctx context.Context) (int, error) {
	open, err := t.Repo.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, task := range open {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		updated, err := t.PollOne(ctx, task.ID.Hex())
		if err != nil {
			t.Logger.Warn("Failed to poll task",
				logger.EntityType(task.EntityType),
				logger.TaskUID(task.UID),
				zap.Error(err))
			continue
		}
		if updated.Status.Terminal() {
			settled++
		}
	}
	return settled, nil
}

// Collect deletes tasks older than minAge that no entity references anymore.
func (t *Tracker) Collect(ctx context.Context, minAge time.Duration) (int, error) {
	candidates, err := t.Repo.ListCreatedBefore(ctx, time.Now().Add(-minAge))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, task := range candidates {
		unlock := t.locks.Lock(task.ID.Hex())
		n, err := t.Entities.CountByTask(ctx, task.ID)
		if err == nil && n == 0 {
			err = t.Repo.Delete(ctx, task.ID)
			if err == nil {
				deleted++
			}
		}
		unlock()
		if err != nil {
			return deleted, err
		}
	}

	if deleted > 0 {
		t.Logger.Info("Collected tasks", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (*Task, error) {
	task, err := t.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "invalid task id %q", id)
	}
	if task == nil {
		return nil, errs.New(errs.NotFound, "task %s not found", id)
	}
	return task, nil
}

func (t *Tracker) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	return t.Repo.List(ctx, filter)
}

// EntitiesOf lists the entities attached to a task.
func (t *Tracker) EntitiesOf(ctx context.Context, id string) ([]entity.Entity, error) {
	task, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Entities.ListByTask(ctx, task.ID)
}
