package reconcile

import (
	"context"
	"time"

	"docsync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RunLogRepository interface {
	Create(ctx context.Context, log *RunLog) error
	Update(ctx context.Context, log *RunLog) error
	List(ctx context.Context, entityType string, limit int64) ([]RunLog, error)
	EnsureIndexes(ctx context.Context) error
}

type RunLogRepositoryImpl struct {
	collection *mongo.Collection
}

func NewRunLogRepository(db *database.MongodbDB) RunLogRepository {
	return &RunLogRepositoryImpl{
		collection: db.DB.Collection("sync_runs"),
	}
}

func (r *RunLogRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "start_time", Value: -1}},
	})
	return err
}

func (r *RunLogRepositoryImpl) Create(ctx context.Context, log *RunLog) error {
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	if log.StartTime.IsZero() {
		log.StartTime = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, log)
	return err
}

func (r *RunLogRepositoryImpl) Update(ctx context.Context, log *RunLog) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": log.ID}, log)
	return err
}

func (r *RunLogRepositoryImpl) List(ctx context.Context, entityType string, limit int64) ([]RunLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, bson.M{"entity_type": entityType}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []RunLog{}
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
