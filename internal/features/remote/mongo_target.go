package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docsync/internal/common/errs"
	"docsync/pkg/fixer"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoTarget mirrors documents into collections of another MongoDB
// database. Writes are applied synchronously.
type MongoTarget struct {
	DB      *mongo.Database
	Timeout time.Duration

	log *outcomeLog
}

func NewMongoTarget(db *mongo.Database, timeout time.Duration) *MongoTarget {
	return &MongoTarget{DB: db, Timeout: timeout, log: newOutcomeLog()}
}

func (m *MongoTarget) Kind() Kind { return KindMongo }

func (m *MongoTarget) SubmitBatch(ctx context.Context, coll Collection, op Operation, docs []fixer.Document) (*Handle, error) {
	if op != OpAddOrUpdate {
		return nil, errs.New(errs.Invalid, "submit does not support operation %q", op)
	}
	if len(docs) == 0 {
		return m.log.record(StatusSucceeded, "0 written"), nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, doc := range docs {
		id, ok := doc[coll.PrimaryKey]
		if !ok {
			return nil, errs.New(errs.IncompleteDocument, "document without %s", coll.PrimaryKey)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{coll.PrimaryKey: id}).
			SetReplacement(bson.M(doc)).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	res, err := m.DB.Collection(coll.Name).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, classifyMongo(err, "bulk write to %s", coll.Name)
	}
	return m.log.record(StatusSucceeded, fmt.Sprintf("%d upserted, %d modified", res.UpsertedCount, res.ModifiedCount)), nil
}

func (m *MongoTarget) DeleteBatch(ctx context.Context, coll Collection, ids []int64) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	res, err := m.DB.Collection(coll.Name).DeleteMany(ctx, bson.M{coll.PrimaryKey: bson.M{"$in": ids}})
	if err != nil {
		return nil, classifyMongo(err, "delete from %s", coll.Name)
	}
	return m.log.record(StatusSucceeded, fmt.Sprintf("%d deleted", res.DeletedCount)), nil
}

func (m *MongoTarget) FetchByIDs(ctx context.Context, coll Collection, ids []int64) (map[int64]fixer.Document, error) {
	found := make(map[int64]fixer.Document, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"_id": 0})
	cursor, err := m.DB.Collection(coll.Name).Find(ctx, bson.M{coll.PrimaryKey: bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, classifyMongo(err, "fetch from %s", coll.Name)
	}
	var docs []fixer.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongo(err, "decode %s", coll.Name)
	}
	for _, doc := range docs {
		if id, ok := DocumentID(doc, coll.PrimaryKey); ok {
			found[id] = doc
		}
	}
	return found, nil
}

func (m *MongoTarget) GetOperationStatus(_ context.Context, uid int64) (Status, string, error) {
	return m.log.lookup(uid)
}

func (m *MongoTarget) ReadRows(ctx context.Context, coll Collection, limit int) ([]fixer.Document, error) {
	if limit < 1 {
		limit = 20
	}
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: coll.PrimaryKey, Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := m.DB.Collection(coll.Name).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, classifyMongo(err, "read %s", coll.Name)
	}
	var docs []fixer.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongo(err, "decode %s", coll.Name)
	}
	return docs, nil
}

func (m *MongoTarget) CreateCollection(ctx context.Context, coll Collection) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	if err := m.DB.CreateCollection(ctx, coll.Name); err != nil {
		return nil, classifyMongo(err, "create %s", coll.Name)
	}
	_, err := m.DB.Collection(coll.Name).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: coll.PrimaryKey, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, classifyMongo(err, "index %s", coll.Name)
	}
	return m.log.record(StatusSucceeded, "collection created"), nil
}

// UpdateSettings accepts {"indexes": ["field", ...]} and creates an ascending
// index per field.
func (m *MongoTarget) UpdateSettings(ctx context.Context, coll Collection, settings map[string]any) (*Handle, error) {
	raw, _ := settings["indexes"].([]any)
	var models []mongo.IndexModel
	for _, f := range raw {
		field, ok := f.(string)
		if !ok || field == "" {
			return nil, errs.New(errs.Invalid, "indexes must be a list of field names")
		}
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	}
	if len(models) == 0 {
		return m.log.record(StatusSucceeded, "no settings to apply"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	names, err := m.DB.Collection(coll.Name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return nil, classifyMongo(err, "index %s", coll.Name)
	}
	return m.log.record(StatusSucceeded, fmt.Sprintf("indexes %v", names)), nil
}

func (m *MongoTarget) DeleteCollection(ctx context.Context, coll Collection) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	if err := m.DB.Collection(coll.Name).Drop(ctx); err != nil {
		return nil, classifyMongo(err, "drop %s", coll.Name)
	}
	return m.log.record(StatusSucceeded, "collection dropped"), nil
}

func (m *MongoTarget) CollectionExists(ctx context.Context, coll Collection) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	names, err := m.DB.ListCollectionNames(ctx, bson.M{"name": coll.Name})
	if err != nil {
		return false, classifyMongo(err, "list collections")
	}
	return len(names) > 0, nil
}

func (m *MongoTarget) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	if err := m.DB.Client().Ping(ctx, nil); err != nil {
		return errs.Wrap(errs.RemoteUnavailable, err, "ping target mongo")
	}
	return nil
}

func classifyMongo(err error, format string, args ...any) error {
	if IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return errs.Wrap(errs.RemoteUnavailable, err, format, args...)
	}
	rejected := errs.Rejected(0, err.Error())
	rejected.Message = fmt.Sprintf(format, args...)
	rejected.Err = err
	return rejected
}
