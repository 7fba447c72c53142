// Package tasktest provides an in-memory task store for tests.
package tasktest

import (
	"context"
	"sort"
	"sync"
	"time"

	"docsync/internal/features/remote"
	"docsync/internal/features/task"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepository implements task.TaskRepository over a map.
type MemoryRepository struct {
	mu    sync.Mutex
	tasks map[primitive.ObjectID]*task.Task
	// Now stamps created tasks; defaults to time.Now.
	Now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[primitive.ObjectID]*task.Task), Now: time.Now}
}

// All returns every stored task, oldest first.
func (m *MemoryRepository) All() []task.Task {
	return m.collect(func(*task.Task) bool { return true })
}

func (m *MemoryRepository) Create(ctx context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = primitive.NewObjectID()
	t.CreatedAt = m.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*task.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[oid]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryRepository) GetByUID(ctx context.Context, kind remote.Kind, uid int64) (*task.Task, error) {
	found := m.collect(func(t *task.Task) bool { return t.Remote == kind && t.UID == uid })
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (m *MemoryRepository) List(ctx context.Context, filter task.ListFilter) ([]task.Task, error) {
	return m.collect(func(t *task.Task) bool {
		return (filter.Status == "" || t.Status == filter.Status) &&
			(filter.EntityType == "" || t.EntityType == filter.EntityType)
	}), nil
}

func (m *MemoryRepository) ListOpen(ctx context.Context) ([]task.Task, error) {
	return m.collect(func(t *task.Task) bool { return !t.Status.Terminal() }), nil
}

func (m *MemoryRepository) ListCreatedBefore(ctx context.Context, before time.Time) ([]task.Task, error) {
	return m.collect(func(t *task.Task) bool { return t.CreatedAt.Before(before) }), nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to remote.Status, response string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.Response = response
	t.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *MemoryRepository) EnsureIndexes(ctx context.Context) error { return nil }

func (m *MemoryRepository) collect(match func(*task.Task) bool) []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []task.Task{}
	for _, t := range m.tasks {
		if match(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out
}
