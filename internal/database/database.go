package database

import (
	"context"
	"log"
	"time"

	"docsync/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

// MongodbDB holds the local store every repository writes to.
type MongodbDB struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// Connect opens and pings the local store.
func Connect(ctx context.Context, cfg *config.Config) (*MongodbDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &MongodbDB{Client: client, DB: client.Database(cfg.DBName)}, nil
}

// Ping checks that the primary is reachable.
func (m *MongodbDB) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (m *MongodbDB) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// NewDatabase creates a new MongoDB database connection with lifecycle management
func NewDatabase(lc fx.Lifecycle, cfg *config.Config) (*MongodbDB, error) {
	db, err := Connect(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	log.Println("Connected to MongoDB!")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Disconnecting from MongoDB...")
			return db.Close(ctx)
		},
	})

	return db, nil
}
