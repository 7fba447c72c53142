package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuditAction string

const (
	AuditActionCreate     AuditAction = "CREATE"
	AuditActionUpdate     AuditAction = "UPDATE"
	AuditActionDelete     AuditAction = "DELETE"
	AuditActionSync       AuditAction = "SYNC"
	AuditActionCron       AuditAction = "CRON"
	AuditActionCollection AuditAction = "COLLECTION"
)

type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

type AuditLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Action    AuditAction        `bson:"action" json:"action"`
	Module    string             `bson:"module" json:"module"`       // index_definitions, scheduled_jobs, entities
	RecordID  string             `bson:"record_id" json:"record_id"` // ID of the changed record
	ActorID   string             `bson:"actor_id" json:"actor_id"`
	Changes   map[string]Change  `bson:"changes,omitempty" json:"changes,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

type Log struct {
	Message      string    `bson:"message" json:"message"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	EntityType   string    `bson:"entity_type,omitempty" json:"entity_type,omitempty"`
	TaskUID      int64     `bson:"task_uid,omitempty" json:"task_uid,omitempty"`
	Error        string    `bson:"error,omitempty" json:"error,omitempty"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	AppId        string    `bson:"app_id" json:"app_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
