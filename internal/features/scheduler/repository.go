package scheduler

import (
	"context"
	"time"

	"docsync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type JobRepository interface {
	Create(ctx context.Context, job *ScheduledJob) error
	GetByID(ctx context.Context, id string) (*ScheduledJob, error)
	List(ctx context.Context, filter JobFilter) ([]ScheduledJob, error)
	Update(ctx context.Context, job *ScheduledJob) error
	Delete(ctx context.Context, id string) error
	UpdateLastRun(ctx context.Context, id primitive.ObjectID, lastRun time.Time, nextRun *time.Time, status RunStatus) error

	// Run log operations
	CreateRun(ctx context.Context, run *JobRun) error
	UpdateRun(ctx context.Context, run *JobRun) error
	ListRuns(ctx context.Context, jobID string, limit int) ([]JobRun, error)

	EnsureIndexes(ctx context.Context) error
}

type JobRepositoryImpl struct {
	collection    *mongo.Collection
	runCollection *mongo.Collection
}

func NewJobRepository(db *database.MongodbDB) JobRepository {
	return &JobRepositoryImpl{
		collection:    db.DB.Collection("scheduled_jobs"),
		runCollection: db.DB.Collection("scheduled_job_runs"),
	}
}

func (r *JobRepositoryImpl) Create(ctx context.Context, job *ScheduledJob) error {
	job.ID = primitive.NewObjectID()
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt

	_, err := r.collection.InsertOne(ctx, job)
	return err
}

func (r *JobRepositoryImpl) GetByID(ctx context.Context, id string) (*ScheduledJob, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var job ScheduledJob
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&job)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepositoryImpl) List(ctx context.Context, filter JobFilter) ([]ScheduledJob, error) {
	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Active != nil {
		query["active"] = *filter.Active
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	jobs := []ScheduledJob{}
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *JobRepositoryImpl) Update(ctx context.Context, job *ScheduledJob) error {
	job.UpdatedAt = time.Now()
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": job.ID}, bson.M{"$set": job})
	return err
}

func (r *JobRepositoryImpl) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	return err
}

func (r *JobRepositoryImpl) UpdateLastRun(ctx context.Context, id primitive.ObjectID, lastRun time.Time, nextRun *time.Time, status RunStatus) error {
	update := bson.M{
		"$set": bson.M{
			"last_run":    lastRun,
			"next_run":    nextRun,
			"last_status": status,
			"updated_at":  time.Now(),
		},
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	return err
}

func (r *JobRepositoryImpl) CreateRun(ctx context.Context, run *JobRun) error {
	run.ID = primitive.NewObjectID()
	run.CreatedAt = time.Now()

	_, err := r.runCollection.InsertOne(ctx, run)
	return err
}

func (r *JobRepositoryImpl) UpdateRun(ctx context.Context, run *JobRun) error {
	_, err := r.runCollection.UpdateOne(ctx, bson.M{"_id": run.ID}, bson.M{"$set": run})
	return err
}

func (r *JobRepositoryImpl) ListRuns(ctx context.Context, jobID string, limit int) ([]JobRun, error) {
	objectID, err := primitive.ObjectIDFromHex(jobID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.runCollection.Find(ctx, bson.M{"job_id": objectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	runs := []JobRun{}
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *JobRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.runCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "job_id", Value: 1}, {Key: "start_time", Value: -1}},
	})
	return err
}
