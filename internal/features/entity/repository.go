package entity

import (
	"context"
	"time"

	"docsync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EntityRepository interface {
	Get(ctx context.Context, entityType string, entityID int64) (*Entity, error)
	// Save inserts or replaces the entity identified by (type, entity id).
	Save(ctx context.Context, e *Entity) error
	// ListByType returns every entity of a type in ascending entity id order.
	ListByType(ctx context.Context, entityType string) ([]Entity, error)
	List(ctx context.Context, filter ListFilter) ([]Entity, error)
	ListByTask(ctx context.Context, taskID primitive.ObjectID) ([]Entity, error)
	CountByTask(ctx context.Context, taskID primitive.ObjectID) (int64, error)

	SetState(ctx context.Context, entityType string, ids []int64, u StateUpdate) error
	SetStates(ctx context.Context, entityType string, updates map[int64]StateUpdate) error
	// SetStateForTask updates only the entities still attached to taskID.
	SetStateForTask(ctx context.Context, taskID primitive.ObjectID, u StateUpdate) (int64, error)
	SetTypeState(ctx context.Context, entityType string, u StateUpdate) (int64, error)
	// DeletePendingForTask removes the pending-delete entities attached to taskID.
	DeletePendingForTask(ctx context.Context, taskID primitive.ObjectID) (int64, error)
	Delete(ctx context.Context, entityType string, entityID int64) error
	EnsureIndexes(ctx context.Context) error
}

type EntityRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewEntityRepository(mongodb *database.MongodbDB) EntityRepository {
	return &EntityRepositoryImpl{
		Collection: mongodb.DB.Collection("entities"),
	}
}

func (r *EntityRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "index_result", Value: 1}}},
	})
	return err
}

func (r *EntityRepositoryImpl) Get(ctx context.Context, entityType string, entityID int64) (*Entity, error) {
	var e Entity
	err := r.Collection.FindOne(ctx, bson.M{"entity_type": entityType, "entity_id": entityID}).Decode(&e)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *EntityRepositoryImpl) Save(ctx context.Context, e *Entity) error {
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}

	filter := bson.M{"entity_type": e.EntityType, "entity_id": e.EntityID}
	_, err := r.Collection.ReplaceOne(ctx, filter, e, options.Replace().SetUpsert(true))
	return err
}

func (r *EntityRepositoryImpl) ListByType(ctx context.Context, entityType string) ([]Entity, error) {
	return r.find(ctx, bson.M{"entity_type": entityType}, options.Find().SetSort(bson.D{{Key: "entity_id", Value: 1}}))
}

func (r *EntityRepositoryImpl) List(ctx context.Context, filter ListFilter) ([]Entity, error) {
	query := bson.M{}
	if filter.EntityType != "" {
		query["entity_type"] = filter.EntityType
	}
	if filter.Result != nil {
		query["index_result"] = *filter.Result
	}
	if filter.Dirty != nil {
		query["dirty"] = *filter.Dirty
	}

	opts := options.Find().SetSort(bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}})
	if filter.Limit > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		opts.SetLimit(filter.Limit).SetSkip((page - 1) * filter.Limit)
	}
	return r.find(ctx, query, opts)
}

func (r *EntityRepositoryImpl) ListByTask(ctx context.Context, taskID primitive.ObjectID) ([]Entity, error) {
	return r.find(ctx, bson.M{"task_id": taskID}, options.Find().SetSort(bson.D{{Key: "entity_id", Value: 1}}))
}

func (r *EntityRepositoryImpl) CountByTask(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	return r.Collection.CountDocuments(ctx, bson.M{"task_id": taskID})
}

func (r *EntityRepositoryImpl) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]Entity, error) {
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	entities := []Entity{}
	if err = cursor.All(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *EntityRepositoryImpl) SetState(ctx context.Context, entityType string, ids []int64, u StateUpdate) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{"entity_type": entityType, "entity_id": bson.M{"$in": ids}}
	_, err := r.Collection.UpdateMany(ctx, filter, u.update(time.Now()))
	return err
}

func (r *EntityRepositoryImpl) SetStates(ctx context.Context, entityType string, updates map[int64]StateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(updates))
	for id, u := range updates {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"entity_type": entityType, "entity_id": id}).
			SetUpdate(u.update(now)))
	}
	_, err := r.Collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (r *EntityRepositoryImpl) SetStateForTask(ctx context.Context, taskID primitive.ObjectID, u StateUpdate) (int64, error) {
	res, err := r.Collection.UpdateMany(ctx, bson.M{"task_id": taskID}, u.update(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *EntityRepositoryImpl) SetTypeState(ctx context.Context, entityType string, u StateUpdate) (int64, error) {
	res, err := r.Collection.UpdateMany(ctx, bson.M{"entity_type": entityType}, u.update(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *EntityRepositoryImpl) DeletePendingForTask(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	res, err := r.Collection.DeleteMany(ctx, bson.M{"task_id": taskID, "pending_delete": true})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *EntityRepositoryImpl) Delete(ctx context.Context, entityType string, entityID int64) error {
	_, err := r.Collection.DeleteOne(ctx, bson.M{"entity_type": entityType, "entity_id": entityID})
	return err
}
