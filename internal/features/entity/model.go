package entity

import (
	"time"

	"docsync/pkg/fixer"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IndexResult is the sync state of one entity. The zero value means the
// entity was never synced or has been removed from the remote.
type IndexResult string

const (
	ResultNone     IndexResult = ""
	ResultQueued   IndexResult = "queued"
	ResultIndexed  IndexResult = "indexed"
	ResultError    IndexResult = "error"
	ResultNotFound IndexResult = "not_found"
	ResultNoIndex  IndexResult = "no_index"
)

// Entity is a local record mirrored to a remote.
type Entity struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EntityType string             `json:"entity_type" bson:"entity_type"`
	EntityID   int64              `json:"entity_id" bson:"entity_id"`
	Fields     map[string]any     `json:"fields" bson:"fields"`

	IndexResult   IndexResult         `json:"index_result" bson:"index_result"`
	IndexResponse string              `json:"index_response,omitempty" bson:"index_response,omitempty"`
	IndexDate     *time.Time          `json:"index_date,omitempty" bson:"index_date,omitempty"`
	TaskID        *primitive.ObjectID `json:"task_id,omitempty" bson:"task_id,omitempty"`
	// IndexDocument is the last document submitted for this entity.
	IndexDocument fixer.Document `json:"index_document,omitempty" bson:"index_document,omitempty"`
	Dirty         bool           `json:"dirty" bson:"dirty"`
	PendingDelete bool           `json:"pending_delete" bson:"pending_delete"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Values returns the fields to serialize; "id" defaults to the entity id.
func (e *Entity) Values() map[string]any {
	values := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		values[k] = v
	}
	if _, ok := values["id"]; !ok {
		values["id"] = e.EntityID
	}
	return values
}

// StateUpdate is a change to the sync bookkeeping of one or more entities.
// Result and Response are always written; the other fields only when set.
type StateUpdate struct {
	Result   IndexResult
	Response string
	Date     *time.Time
	TaskID   *primitive.ObjectID
	// Document is stored as the last submitted document and clears Dirty.
	Document fixer.Document
	// DetachTask unsets task_id.
	DetachTask bool
	// Clear unsets date, task and document.
	Clear bool
}

func (u StateUpdate) update(now time.Time) bson.M {
	set := bson.M{
		"index_result":   u.Result,
		"index_response": u.Response,
		"updated_at":     now,
	}
	unset := bson.M{}

	if u.Date != nil {
		set["index_date"] = *u.Date
	}
	if u.TaskID != nil {
		set["task_id"] = *u.TaskID
	}
	if u.Document != nil {
		set["index_document"] = u.Document
		set["dirty"] = false
	}
	if u.DetachTask || u.Clear {
		unset["task_id"] = ""
	}
	if u.Clear {
		unset["index_date"] = ""
		unset["index_document"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

// Apply mutates e the way the update would in the store.
func (u StateUpdate) Apply(e *Entity) {
	e.IndexResult = u.Result
	e.IndexResponse = u.Response
	if u.Date != nil {
		d := *u.Date
		e.IndexDate = &d
	}
	if u.TaskID != nil {
		id := *u.TaskID
		e.TaskID = &id
	}
	if u.Document != nil {
		e.IndexDocument = u.Document
		e.Dirty = false
	}
	if u.DetachTask || u.Clear {
		e.TaskID = nil
	}
	if u.Clear {
		e.IndexDate = nil
		e.IndexDocument = nil
	}
}

// ListFilter narrows entity listings. Empty fields match everything.
type ListFilter struct {
	EntityType string
	Result     *IndexResult
	Dirty      *bool
	Page       int64
	Limit      int64
}
