package audit

import (
	"context"

	common_models "docsync/internal/common/models"
	"docsync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditRepository interface {
	Create(ctx context.Context, log common_models.AuditLog) error
	List(ctx context.Context, filter Filter, limit, offset int64) ([]common_models.AuditLog, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("audit_logs"),
	}
}

func (r *AuditRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "module", Value: 1}, {Key: "record_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	return err
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, log common_models.AuditLog) error {
	_, err := r.Collection.InsertOne(ctx, log)
	return err
}

func (r *AuditRepositoryImpl) List(ctx context.Context, filter Filter, limit, offset int64) ([]common_models.AuditLog, error) {
	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.D{{Key: "timestamp", Value: -1}})

	cursor, err := r.Collection.Find(ctx, filterQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	logs := []common_models.AuditLog{}
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *AuditRepositoryImpl) Count(ctx context.Context, filter Filter) (int64, error) {
	return r.Collection.CountDocuments(ctx, filterQuery(filter))
}

func filterQuery(f Filter) bson.M {
	query := bson.M{}
	if f.Module != "" {
		query["module"] = f.Module
	}
	if f.RecordID != "" {
		query["record_id"] = f.RecordID
	}
	if f.Action != "" {
		query["action"] = f.Action
	}
	if f.ActorID != "" {
		query["actor_id"] = f.ActorID
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		window := bson.M{}
		if !f.Since.IsZero() {
			window["$gte"] = f.Since
		}
		if !f.Until.IsZero() {
			window["$lt"] = f.Until
		}
		query["timestamp"] = window
	}
	return query
}
