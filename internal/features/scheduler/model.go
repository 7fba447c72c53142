package scheduler

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobKind selects the handler a scheduled job runs. The set is closed: a
// job can only name one of the kinds below.
type JobKind string

const (
	JobReconcile    JobKind = "reconcile"
	JobVerify       JobKind = "verify"
	JobReconcileAll JobKind = "reconcile_all"
	JobPollTasks    JobKind = "poll_tasks"
	JobCollectTasks JobKind = "collect_tasks"
	JobPullOdoo     JobKind = "pull_odoo"
	JobPullRemote   JobKind = "pull_remote"
)

// Kinds lists every job kind in a stable order.
var Kinds = []JobKind{
	JobReconcile,
	JobVerify,
	JobReconcileAll,
	JobPollTasks,
	JobCollectTasks,
	JobPullOdoo,
	JobPullRemote,
}

// NeedsEntityType reports whether jobs of this kind act on one entity type.
func (k JobKind) NeedsEntityType() bool {
	switch k {
	case JobReconcile, JobVerify, JobPullOdoo, JobPullRemote:
		return true
	}
	return false
}

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ScheduledJob runs one sync operation on a cron schedule.
type ScheduledJob struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name        string             `json:"name" bson:"name"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	Kind        JobKind            `json:"kind" bson:"kind"`
	Schedule    string             `json:"schedule" bson:"schedule"`
	EntityType  string             `json:"entity_type,omitempty" bson:"entity_type,omitempty"`
	Force       bool               `json:"force,omitempty" bson:"force,omitempty"`
	// Model is the Odoo model read by pull_odoo jobs.
	Model string `json:"model,omitempty" bson:"model,omitempty"`
	// Limit caps the rows read by pull_remote jobs.
	Limit      int        `json:"limit,omitempty" bson:"limit,omitempty"`
	Active     bool       `json:"active" bson:"active"`
	LastRun    *time.Time `json:"last_run,omitempty" bson:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty" bson:"next_run,omitempty"`
	LastStatus RunStatus  `json:"last_status,omitempty" bson:"last_status,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" bson:"updated_at"`
}

// JobRun records a single execution of a scheduled job.
type JobRun struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	JobID     primitive.ObjectID `json:"job_id" bson:"job_id"`
	JobName   string             `json:"job_name" bson:"job_name"`
	Kind      JobKind            `json:"kind" bson:"kind"`
	Manual    bool               `json:"manual" bson:"manual"`
	StartTime time.Time          `json:"start_time" bson:"start_time"`
	EndTime   *time.Time         `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Status    RunStatus          `json:"status" bson:"status"`
	Affected  int                `json:"affected" bson:"affected"`
	Error     string             `json:"error,omitempty" bson:"error,omitempty"`
	Output    string             `json:"output,omitempty" bson:"output,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type JobFilter struct {
	Kind   JobKind
	Active *bool
}
