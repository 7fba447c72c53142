package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docsync/internal/common/errs"
	"docsync/pkg/fixer"

	"github.com/meilisearch/meilisearch-go"
)

// DefaultIndexSettings is applied when a definition carries no settings.
var DefaultIndexSettings = map[string]any{"filterableAttributes": []string{"id"}}

// MeilisearchClient talks to Meilisearch through the official SDK. Writes
// are asynchronous: every write returns an enqueued task whose outcome
// arrives later through the task webhook or GetOperationStatus.
type MeilisearchClient struct {
	Host    string
	sdk     meilisearch.ServiceManager
	timeout time.Duration
}

func NewMeilisearchClient(baseURL, apiKey string, timeout time.Duration) *MeilisearchClient {
	host := strings.TrimRight(baseURL, "/")
	return &MeilisearchClient{
		Host:    host,
		sdk:     meilisearch.New(host, meilisearch.WithAPIKey(apiKey)),
		timeout: timeout,
	}
}

func (c *MeilisearchClient) Kind() Kind { return KindMeilisearch }

func (c *MeilisearchClient) SubmitBatch(ctx context.Context, coll Collection, op Operation, docs []fixer.Document) (*Handle, error) {
	if op != OpAddOrUpdate {
		return nil, errs.New(errs.Invalid, "submit does not support operation %q", op)
	}
	return c.write(ctx, "add documents to "+coll.Name, func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.sdk.Index(coll.Name).AddDocumentsWithContext(ctx, docs, coll.PrimaryKey)
	})
}

func (c *MeilisearchClient) DeleteBatch(ctx context.Context, coll Collection, ids []int64) (*Handle, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = strconv.FormatInt(id, 10)
	}
	return c.write(ctx, "delete documents from "+coll.Name, func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.sdk.Index(coll.Name).DeleteDocumentsWithContext(ctx, keys)
	})
}

// FetchByIDs searches with an OR filter on the primary key. The filter
// capacity of the server bounds len(ids), see batch.SearchSize.
func (c *MeilisearchClient) FetchByIDs(ctx context.Context, coll Collection, ids []int64) (map[int64]fixer.Document, error) {
	found := make(map[int64]fixer.Document, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()
	raw, err := c.sdk.Index(coll.Name).SearchRawWithContext(ctx, "", &meilisearch.SearchRequest{
		Filter: idFilter(coll.PrimaryKey, ids),
		Limit:  int64(len(ids)),
	})
	if err != nil {
		return nil, classify(ctx, err, "search "+coll.Name)
	}

	// Hits are decoded here so ids keep their exact numeric value.
	var res struct {
		Hits []fixer.Document `json:"hits"`
	}
	dec := json.NewDecoder(bytes.NewReader(*raw))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		return nil, errs.Wrap(errs.RemoteRejected, err, "decode search of %s", coll.Name)
	}

	for _, hit := range res.Hits {
		if id, ok := DocumentID(hit, coll.PrimaryKey); ok {
			found[id] = hit
		}
	}
	return found, nil
}

func (c *MeilisearchClient) GetOperationStatus(ctx context.Context, uid int64) (Status, string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	task, err := c.sdk.GetTaskWithContext(ctx, uid)
	if err != nil {
		err = classify(ctx, err, fmt.Sprintf("get task %d", uid))
		if errs.RemoteStatus(err) == http.StatusNotFound {
			return "", "", errs.Wrap(errs.NotFound, err, "meilisearch task %d", uid)
		}
		return "", "", err
	}
	return Status(task.Status), task.Error.Message, nil
}

func (c *MeilisearchClient) Health(ctx context.Context) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if _, err := c.sdk.HealthWithContext(ctx); err != nil {
		return classify(ctx, err, "health")
	}
	return nil
}

func (c *MeilisearchClient) CreateCollection(ctx context.Context, coll Collection) (*Handle, error) {
	return c.write(ctx, "create index "+coll.Name, func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.sdk.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{Uid: coll.Name, PrimaryKey: coll.PrimaryKey})
	})
}

func (c *MeilisearchClient) UpdateSettings(ctx context.Context, coll Collection, settings map[string]any) (*Handle, error) {
	if len(settings) == 0 {
		settings = DefaultIndexSettings
	}
	// Definitions store settings as free-form JSON; the SDK type carries the same keys.
	payload, err := json.Marshal(settings)
	if err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "encode settings of %s", coll.Name)
	}
	var typed meilisearch.Settings
	if err := json.Unmarshal(payload, &typed); err != nil {
		return nil, errs.Wrap(errs.Invalid, err, "settings of %s", coll.Name)
	}
	return c.write(ctx, "update settings of "+coll.Name, func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.sdk.Index(coll.Name).UpdateSettingsWithContext(ctx, &typed)
	})
}

func (c *MeilisearchClient) DeleteCollection(ctx context.Context, coll Collection) (*Handle, error) {
	return c.write(ctx, "delete index "+coll.Name, func(ctx context.Context) (*meilisearch.TaskInfo, error) {
		return c.sdk.DeleteIndexWithContext(ctx, coll.Name)
	})
}

func (c *MeilisearchClient) CollectionExists(ctx context.Context, coll Collection) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	_, err := c.sdk.GetIndexWithContext(ctx, coll.Name)
	if err == nil {
		return true, nil
	}
	err = classify(ctx, err, "get index "+coll.Name)
	if errs.RemoteStatus(err) == http.StatusNotFound {
		return false, nil
	}
	return false, err
}

func (c *MeilisearchClient) write(ctx context.Context, what string, call func(context.Context) (*meilisearch.TaskInfo, error)) (*Handle, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	info, err := call(ctx)
	if err != nil {
		return nil, classify(ctx, err, what)
	}
	status := Status(info.Status)
	if status == "" {
		status = StatusEnqueued
	}
	return &Handle{UID: info.TaskUID, Status: status, Detail: string(info.Type), EnqueuedAt: info.EnqueuedAt}, nil
}

func (c *MeilisearchClient) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps SDK errors onto error kinds. A refused API key makes the
// remote unusable rather than rejecting the request.
func classify(ctx context.Context, err error, what string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errs.Wrap(errs.RemoteUnavailable, ctxErr, "meilisearch %s", what)
	}

	var apiErr *meilisearch.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode == 0 {
		return errs.Wrap(errs.RemoteUnavailable, err, "meilisearch %s", what)
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		e := errs.New(errs.RemoteUnavailable, "meilisearch refused the API key (status %d)", apiErr.StatusCode)
		e.Status = apiErr.StatusCode
		e.Body = apiErr.ResponseToString
		return e
	default:
		return errs.Rejected(apiErr.StatusCode, apiErr.ResponseToString)
	}
}

// idFilter builds `id = 1 OR id = 2`.
func idFilter(field string, ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s = %d", field, id)
	}
	return strings.Join(parts, " OR ")
}
