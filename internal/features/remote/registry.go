package remote

import (
	"context"
	"sync"

	"docsync/internal/common/errs"
	"docsync/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Resolver hands out the client for a remote kind.
type Resolver interface {
	Client(kind Kind) (Client, error)
}

type builder func(cfg *config.Config) (Client, error)

// builders is the closed table of remote implementations.
var builders = map[Kind]builder{
	KindMeilisearch: func(cfg *config.Config) (Client, error) {
		if cfg.MeiliURL == "" {
			return nil, errs.New(errs.RemoteUnavailable, "MEILI_URL is not configured")
		}
		return NewMeilisearchClient(cfg.MeiliURL, cfg.MeiliAPIKey, cfg.RemoteTimeout), nil
	},
	KindSQLTable: func(cfg *config.Config) (Client, error) {
		if cfg.KardexDSN == "" {
			return nil, errs.New(errs.RemoteUnavailable, "KARDEX_DSN is not configured")
		}
		return OpenSQLTable(Dialect(cfg.KardexDriver), cfg.KardexDSN, cfg.RemoteTimeout)
	},
	KindMongo: func(cfg *config.Config) (Client, error) {
		if cfg.TargetMongoURI == "" || cfg.TargetMongoDB == "" {
			return nil, errs.New(errs.RemoteUnavailable, "TARGET_MONGO_URI and TARGET_MONGO_DB are not configured")
		}
		client, err := mongo.Connect(context.Background(), options.Client().
			ApplyURI(cfg.TargetMongoURI).
			SetTimeout(cfg.RemoteTimeout))
		if err != nil {
			return nil, errs.Wrap(errs.RemoteUnavailable, err, "connect target mongo")
		}
		return NewMongoTarget(client.Database(cfg.TargetMongoDB), cfg.RemoteTimeout), nil
	},
}

// Registry builds each configured remote once, on first use.
type Registry struct {
	cfg     *config.Config
	logger  *zap.Logger
	mu      sync.Mutex
	clients map[Kind]Client
}

func NewRegistry(cfg *config.Config, logger *zap.Logger) *Registry {
	return &Registry{cfg: cfg, logger: logger, clients: make(map[Kind]Client)}
}

// NewStaticRegistry serves the given clients and builds nothing.
func NewStaticRegistry(clients map[Kind]Client) *Registry {
	r := &Registry{clients: make(map[Kind]Client, len(clients))}
	for k, c := range clients {
		r.clients[k] = c
	}
	return r
}

func (r *Registry) Client(kind Kind) (Client, error) {
	if !kind.Valid() {
		return nil, errs.New(errs.Invalid, "unknown remote %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[kind]; ok {
		return c, nil
	}
	if r.cfg == nil {
		return nil, errs.New(errs.RemoteUnavailable, "remote %s is not configured", kind)
	}

	c, err := builders[kind](r.cfg)
	if err != nil {
		return nil, err
	}
	if r.logger != nil {
		r.logger.Info("Remote client ready", zap.String("remote", string(kind)))
	}
	r.clients[kind] = c
	return c, nil
}

// Close releases connections held by the built clients.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for kind, c := range r.clients {
		var err error
		switch cl := c.(type) {
		case *SQLTableClient:
			err = cl.Close()
		case *MongoTarget:
			err = cl.DB.Client().Disconnect(ctx)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.clients, kind)
	}
	return firstErr
}
