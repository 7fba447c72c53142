// Package remote talks to the systems documents are synchronized into.
//
// Every call is bounded by the client's timeout and is never retried here.
// Connection and authentication failures surface as errs.RemoteUnavailable,
// refusals as errs.RemoteRejected carrying the raw response.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"strconv"
	"time"

	"docsync/pkg/fixer"

	"go.mongodb.org/mongo-driver/mongo"
)

// Kind names a remote implementation.
type Kind string

const (
	KindMeilisearch Kind = "meilisearch"
	KindSQLTable    Kind = "sqltable"
	KindMongo       Kind = "mongo"
)

var kinds = []Kind{KindMeilisearch, KindSQLTable, KindMongo}

// Kinds lists every supported remote.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Operation is the kind of write a batch performs.
type Operation string

const (
	OpAddOrUpdate Operation = "add_or_update"
	OpDelete      Operation = "delete"
)

// Status is the lifecycle state of a remote operation.
type Status string

const (
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusEnqueued, StatusProcessing, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s absorbs every later signal.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanMoveTo reports whether an operation in s may take status next.
// Statuses only move forward and terminal statuses never change.
func (s Status) CanMoveTo(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	return rank(next) > rank(s)
}

func rank(s Status) int {
	switch s {
	case StatusEnqueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusSucceeded, StatusFailed:
		return 3
	}
	return 0
}

// Collection identifies where documents live on the remote.
type Collection struct {
	Name string
	// PrimaryKey is the remote field holding the entity id.
	PrimaryKey string
}

// Handle describes an accepted operation.
type Handle struct {
	UID        int64
	Status     Status
	Detail     string
	EnqueuedAt time.Time
}

// Client is implemented by every remote.
type Client interface {
	Kind() Kind
	SubmitBatch(ctx context.Context, coll Collection, op Operation, docs []fixer.Document) (*Handle, error)
	// FetchByIDs returns the documents found; absent ids are missing from the map.
	FetchByIDs(ctx context.Context, coll Collection, ids []int64) (map[int64]fixer.Document, error)
	DeleteBatch(ctx context.Context, coll Collection, ids []int64) (*Handle, error)
	// GetOperationStatus returns the status of a previously returned handle and,
	// for failed operations, the failure detail.
	GetOperationStatus(ctx context.Context, uid int64) (Status, string, error)
}

// RowSelector is implemented by SQL-backed remotes. Values are always bound
// as parameters. A query matching no row returns nil, nil.
type RowSelector interface {
	SelectOne(ctx context.Context, query string, args ...any) (fixer.Document, error)
}

// RowReader lists documents stored on the remote, ordered by primary key.
type RowReader interface {
	ReadRows(ctx context.Context, coll Collection, limit int) ([]fixer.Document, error)
}

// CollectionManager is implemented by remotes whose collections can be
// created and configured through the API.
type CollectionManager interface {
	CreateCollection(ctx context.Context, coll Collection) (*Handle, error)
	UpdateSettings(ctx context.Context, coll Collection, settings map[string]any) (*Handle, error)
	DeleteCollection(ctx context.Context, coll Collection) (*Handle, error)
	CollectionExists(ctx context.Context, coll Collection) (bool, error)
}

// HealthChecker verifies connectivity and credentials.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// IsTimeout reports whether err comes from a deadline expiring. The fate of
// the operation is then unknown: it may or may not have been applied.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// DocumentID reads the primary key of doc as an integer.
func DocumentID(doc fixer.Document, primaryKey string) (int64, bool) {
	return toInt64(doc[primaryKey])
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}
