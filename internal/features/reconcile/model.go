package reconcile

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RunKind string

const (
	RunReconcile RunKind = "reconcile"
	RunVerify    RunKind = "verify"
)

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	// RunPartial means some batches or entities failed while others went through.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
	RunNoIndex RunStatus = "no_index"
)

// Counts tallies what a run did with the entities of its type.
type Counts struct {
	Entities  int `json:"entities" bson:"entities"`
	Submitted int `json:"submitted" bson:"submitted"`
	Deleted   int `json:"deleted" bson:"deleted"`
	Skipped   int `json:"skipped" bson:"skipped"`
	Errors    int `json:"errors" bson:"errors"`
	TimedOut  int `json:"timed_out" bson:"timed_out"`
	Batches   int `json:"batches" bson:"batches"`
	Indexed   int `json:"indexed" bson:"indexed"`
	NotFound  int `json:"not_found" bson:"not_found"`
	NoIndex   int `json:"no_index" bson:"no_index"`
}

// RunLog records one reconcile or verify pass over an entity type.
type RunLog struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EntityType string             `json:"entity_type" bson:"entity_type"`
	Kind       RunKind            `json:"kind" bson:"kind"`
	Force      bool               `json:"force,omitempty" bson:"force,omitempty"`
	Status     RunStatus          `json:"status" bson:"status"`
	Counts     Counts             `json:"counts" bson:"counts"`
	Error      string             `json:"error,omitempty" bson:"error,omitempty"`
	StartTime  time.Time          `json:"start_time" bson:"start_time"`
	EndTime    time.Time          `json:"end_time" bson:"end_time"`
}
