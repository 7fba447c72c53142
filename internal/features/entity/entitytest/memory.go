// Package entitytest provides an in-memory entity store for tests.
package entitytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"docsync/internal/features/entity"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type key struct {
	entityType string
	id         int64
}

// MemoryRepository implements entity.EntityRepository over a map.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[key]*entity.Entity
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[key]*entity.Entity)}
}

// Seed stores entities as given.
func (m *MemoryRepository) Seed(entities ...entity.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range entities {
		e := entities[i]
		if e.ID.IsZero() {
			e.ID = primitive.NewObjectID()
		}
		m.rows[key{e.EntityType, e.EntityID}] = &e
	}
}

// Must returns a copy of an entity, or the zero Entity when it does not exist.
func (m *MemoryRepository) Must(entityType string, id int64) entity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[key{entityType, id}]; ok {
		return clone(e)
	}
	return entity.Entity{}
}

func (m *MemoryRepository) Get(ctx context.Context, entityType string, entityID int64) (*entity.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[key{entityType, entityID}]
	if !ok {
		return nil, nil
	}
	cp := clone(e)
	return &cp, nil
}

func (m *MemoryRepository) Save(ctx context.Context, e *entity.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	cp := clone(e)
	m.rows[key{e.EntityType, e.EntityID}] = &cp
	return nil
}

func (m *MemoryRepository) ListByType(ctx context.Context, entityType string) ([]entity.Entity, error) {
	return m.collect(func(e *entity.Entity) bool { return e.EntityType == entityType }), nil
}

func (m *MemoryRepository) List(ctx context.Context, filter entity.ListFilter) ([]entity.Entity, error) {
	return m.collect(func(e *entity.Entity) bool {
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			return false
		}
		if filter.Result != nil && e.IndexResult != *filter.Result {
			return false
		}
		if filter.Dirty != nil && e.Dirty != *filter.Dirty {
			return false
		}
		return true
	}), nil
}

func (m *MemoryRepository) ListByTask(ctx context.Context, taskID primitive.ObjectID) ([]entity.Entity, error) {
	return m.collect(attachedTo(taskID)), nil
}

func (m *MemoryRepository) CountByTask(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	return int64(len(m.collect(attachedTo(taskID)))), nil
}

func (m *MemoryRepository) SetState(ctx context.Context, entityType string, ids []int64, u entity.StateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if e, ok := m.rows[key{entityType, id}]; ok {
			u.Apply(e)
		}
	}
	return nil
}

func (m *MemoryRepository) SetStates(ctx context.Context, entityType string, updates map[int64]entity.StateUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range updates {
		if e, ok := m.rows[key{entityType, id}]; ok {
			u.Apply(e)
		}
	}
	return nil
}

func (m *MemoryRepository) SetStateForTask(ctx context.Context, taskID primitive.ObjectID, u entity.StateUpdate) (int64, error) {
	return m.update(attachedTo(taskID), u), nil
}

func (m *MemoryRepository) SetTypeState(ctx context.Context, entityType string, u entity.StateUpdate) (int64, error) {
	return m.update(func(e *entity.Entity) bool { return e.EntityType == entityType }, u), nil
}

func (m *MemoryRepository) DeletePendingForTask(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	match := attachedTo(taskID)
	for k, e := range m.rows {
		if match(e) && e.PendingDelete {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, entityType string, entityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, key{entityType, entityID})
	return nil
}

func (m *MemoryRepository) EnsureIndexes(ctx context.Context) error { return nil }

func (m *MemoryRepository) update(match func(*entity.Entity) bool, u entity.StateUpdate) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.rows {
		if match(e) {
			u.Apply(e)
			n++
		}
	}
	return n
}

func (m *MemoryRepository) collect(match func(*entity.Entity) bool) []entity.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.Entity{}
	for _, e := range m.rows {
		if match(e) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func attachedTo(taskID primitive.ObjectID) func(*entity.Entity) bool {
	return func(e *entity.Entity) bool { return e.TaskID != nil && *e.TaskID == taskID }
}

func clone(e *entity.Entity) entity.Entity {
	cp := *e
	if e.Fields != nil {
		cp.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			cp.Fields[k] = v
		}
	}
	if e.TaskID != nil {
		id := *e.TaskID
		cp.TaskID = &id
	}
	if e.IndexDate != nil {
		d := *e.IndexDate
		cp.IndexDate = &d
	}
	return cp
}
