package task

import (
	"time"

	"docsync/internal/features/remote"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task is one operation accepted by a remote, tracked until it settles.
type Task struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name         string             `json:"name" bson:"name"`
	Operation    remote.Operation   `json:"operation" bson:"operation"`
	Remote       remote.Kind        `json:"remote" bson:"remote"`
	UID          int64              `json:"uid" bson:"uid"`
	Status       remote.Status      `json:"status" bson:"status"`
	Response     string             `json:"response,omitempty" bson:"response,omitempty"`
	DefinitionID primitive.ObjectID `json:"definition_id" bson:"definition_id"`
	EntityType   string             `json:"entity_type" bson:"entity_type"`
	Collection   string             `json:"collection" bson:"collection"`
	EntityCount  int                `json:"entity_count" bson:"entity_count"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" bson:"updated_at"`
}

type ListFilter struct {
	Status     remote.Status
	EntityType string
	Page       int64
	Limit      int64
}

// Event is published after a task changes status.
type Event struct {
	TaskID     string           `json:"task_id"`
	UID        int64            `json:"uid"`
	Remote     remote.Kind      `json:"remote"`
	EntityType string           `json:"entity_type"`
	Operation  remote.Operation `json:"operation"`
	Status     remote.Status    `json:"status"`
	Response   string           `json:"response,omitempty"`
	At         time.Time        `json:"at"`
}

// Notifier receives task events. Implementations must not block.
type Notifier interface {
	Notify(ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
