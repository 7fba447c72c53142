package task

import (
	"context"
	"time"

	"docsync/internal/database"
	"docsync/internal/features/remote"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id string) (*Task, error)
	GetByUID(ctx context.Context, kind remote.Kind, uid int64) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, error)
	// ListOpen returns the tasks that have not reached a terminal status.
	ListOpen(ctx context.Context) ([]Task, error)
	ListCreatedBefore(ctx context.Context, before time.Time) ([]Task, error)
	// UpdateStatus moves a task from one status to another. It reports false
	// when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to remote.Status, response string) (bool, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	EnsureIndexes(ctx context.Context) error
}

type TaskRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewTaskRepository(mongodb *database.MongodbDB) TaskRepository {
	return &TaskRepositoryImpl{
		Collection: mongodb.DB.Collection("sync_tasks"),
	}
}

func (r *TaskRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "remote", Value: 1}, {Key: "uid", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	return err
}

func (r *TaskRepositoryImpl) Create(ctx context.Context, t *Task) error {
	t.ID = primitive.NewObjectID()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	_, err := r.Collection.InsertOne(ctx, t)
	return err
}

func (r *TaskRepositoryImpl) GetByID(ctx context.Context, id string) (*Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *TaskRepositoryImpl) GetByUID(ctx context.Context, kind remote.Kind, uid int64) (*Task, error) {
	return r.findOne(ctx, bson.M{"remote": kind, "uid": uid})
}

func (r *TaskRepositoryImpl) findOne(ctx context.Context, filter bson.M) (*Task, error) {
	var t Task
	err := r.Collection.FindOne(ctx, filter).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepositoryImpl) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		opts.SetLimit(filter.Limit).SetSkip((page - 1) * filter.Limit)
	}
	return r.find(ctx, query, opts)
}

func (r *TaskRepositoryImpl) ListOpen(ctx context.Context) ([]Task, error) {
	query := bson.M{"status": bson.M{"$in": []remote.Status{remote.StatusEnqueued, remote.StatusProcessing}}}
	return r.find(ctx, query, options.Find().SetSort(bson.M{"created_at": 1}))
}

func (r *TaskRepositoryImpl) ListCreatedBefore(ctx context.Context, before time.Time) ([]Task, error) {
	return r.find(ctx, bson.M{"created_at": bson.M{"$lt": before}}, options.Find().SetSort(bson.M{"created_at": 1}))
}

func (r *TaskRepositoryImpl) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]Task, error) {
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	tasks := []Task{}
	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepositoryImpl) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to remote.Status, response string) (bool, error) {
	update := bson.M{"$set": bson.M{
		"status":     to,
		"response":   response,
		"updated_at": time.Now(),
	}}
	res, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id, "status": from}, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *TaskRepositoryImpl) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.Collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
