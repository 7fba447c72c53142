package definition

import (
	"context"
	"time"

	"docsync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DefinitionRepository interface {
	Create(ctx context.Context, def *Definition) error
	GetByID(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context) ([]Definition, error)
	ListEnabled(ctx context.Context, entityType string) ([]Definition, error)
	Update(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id string) error
	EnsureIndexes(ctx context.Context) error
}

type DefinitionRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewDefinitionRepository(mongodb *database.MongodbDB) DefinitionRepository {
	return &DefinitionRepositoryImpl{
		Collection: mongodb.DB.Collection("index_definitions"),
	}
}

func (r *DefinitionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "enabled", Value: 1}}},
		{Keys: bson.D{{Key: "sequence", Value: 1}}},
	})
	return err
}

func (r *DefinitionRepositoryImpl) Create(ctx context.Context, def *Definition) error {
	def.ID = primitive.NewObjectID()
	def.CreatedAt = time.Now()
	def.UpdatedAt = def.CreatedAt
	_, err := r.Collection.InsertOne(ctx, def)
	return err
}

func (r *DefinitionRepositoryImpl) GetByID(ctx context.Context, id string) (*Definition, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var def Definition
	err = r.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&def)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &def, nil
}

func (r *DefinitionRepositoryImpl) List(ctx context.Context) ([]Definition, error) {
	return r.find(ctx, bson.M{})
}

func (r *DefinitionRepositoryImpl) ListEnabled(ctx context.Context, entityType string) ([]Definition, error) {
	filter := bson.M{"enabled": true}
	if entityType != "" {
		filter["entity_type"] = entityType
	}
	return r.find(ctx, filter)
}

func (r *DefinitionRepositoryImpl) find(ctx context.Context, filter bson.M) ([]Definition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defs := []Definition{}
	if err = cursor.All(ctx, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *DefinitionRepositoryImpl) Update(ctx context.Context, def *Definition) error {
	def.UpdatedAt = time.Now()
	_, err := r.Collection.ReplaceOne(ctx, bson.M{"_id": def.ID}, def)
	return err
}

func (r *DefinitionRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}
