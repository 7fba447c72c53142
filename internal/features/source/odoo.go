package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/rpc"
	"strings"
	"sync"
	"time"

	"docsync/internal/common/errs"
	"docsync/internal/config"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"
)

// OdooReader pages through the records of an Odoo model.
type OdooReader interface {
	SearchRead(ctx context.Context, model string, fields []string, offset, limit int) ([]map[string]any, error)
}

// OdooClient talks to Odoo's external XML-RPC API. The session uid is
// cached after the first successful authenticate call.
type OdooClient struct {
	url      string
	db       string
	username string
	password string
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	uid    int64
	object *xmlrpc.Client
}

// NewOdooClient returns nil when no Odoo URL is configured.
func NewOdooClient(cfg *config.Config, logger *zap.Logger) *OdooClient {
	if cfg.OdooURL == "" {
		return nil
	}
	return &OdooClient{
		url:      strings.TrimRight(cfg.OdooURL, "/"),
		db:       cfg.OdooDB,
		username: cfg.OdooUser,
		password: cfg.OdooPassword,
		timeout:  cfg.RemoteTimeout,
		logger:   logger,
	}
}

func (c *OdooClient) SearchRead(ctx context.Context, model string, fields []string, offset, limit int) ([]map[string]any, error) {
	uid, object, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	args := []any{
		c.db, uid, c.password, model, "search_read",
		[]any{[]any{}},
		map[string]any{
			"fields": fields,
			"offset": offset,
			"limit":  limit,
			"order":  "id asc",
		},
	}
	var records []map[string]any
	if err := c.call(ctx, object, "execute_kw", args, &records); err != nil {
		if errs.Is(err, errs.RemoteUnavailable) {
			c.Close()
		}
		c.logger.Error("Odoo search_read failed",
			zap.String("model", model),
			zap.Int("offset", offset),
			zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (c *OdooClient) connection(ctx context.Context) (int64, *xmlrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.object != nil {
		return c.uid, c.object, nil
	}

	common, err := xmlrpc.NewClient(c.url+"/xmlrpc/2/common", http.DefaultTransport)
	if err != nil {
		return 0, nil, errs.Wrap(errs.RemoteUnavailable, err, "odoo")
	}
	defer common.Close()

	var uid any
	if err := c.call(ctx, common, "authenticate", []any{c.db, c.username, c.password, map[string]any{}}, &uid); err != nil {
		return 0, nil, err
	}
	// Odoo answers false instead of faulting on bad credentials.
	id, ok := uid.(int64)
	if !ok || id == 0 {
		return 0, nil, errs.New(errs.RemoteUnavailable, "odoo: authentication failed for %s on %s", c.username, c.db)
	}

	object, err := xmlrpc.NewClient(c.url+"/xmlrpc/2/object", http.DefaultTransport)
	if err != nil {
		return 0, nil, errs.Wrap(errs.RemoteUnavailable, err, "odoo")
	}
	c.uid, c.object = id, object
	c.logger.Info("Authenticated with Odoo", zap.String("db", c.db), zap.Int64("uid", id))
	return c.uid, c.object, nil
}

// call runs an XML-RPC call under ctx. The xmlrpc client has no context
// support, so an abandoned call finishes in the background.
func (c *OdooClient) call(ctx context.Context, client *xmlrpc.Client, method string, args []any, reply any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- client.Call(method, args, reply) }()

	select {
	case <-ctx.Done():
		return errs.Wrap(errs.RemoteUnavailable, ctx.Err(), "odoo %s", method)
	case err := <-done:
		var fault xmlrpc.FaultError
		var server rpc.ServerError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &fault):
			return &errs.Error{Kind: errs.RemoteRejected, Message: fmt.Sprintf("odoo %s fault %d", method, fault.Code), Body: fault.String}
		case errors.As(err, &server):
			return &errs.Error{Kind: errs.RemoteRejected, Message: fmt.Sprintf("odoo %s", method), Body: string(server)}
		default:
			return errs.Wrap(errs.RemoteUnavailable, err, "odoo %s", method)
		}
	}
}

// Close drops the cached session; the next call authenticates again.
func (c *OdooClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.object != nil {
		c.object.Close()
		c.object = nil
	}
}
