package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docsync/internal/common/errs"
	"docsync/pkg/fixer"
)

func newMeiliServer(t *testing.T, handler http.HandlerFunc) *MeilisearchClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMeilisearchClient(srv.URL+"/", "master-key", time.Second)
}

var products = Collection{Name: "products", PrimaryKey: "id"}

func TestMeilisearchSubmitBatch(t *testing.T) {
	client := newMeiliServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/indexes/products/documents" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("primaryKey"); got != "id" {
			t.Errorf("primaryKey = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer master-key" {
			t.Errorf("Authorization = %q", got)
		}
		var docs []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&docs); err != nil || len(docs) != 1 || docs[0]["name"] != "Widget" {
			t.Errorf("unexpected body %v (%v)", docs, err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"taskUid":7,"indexUid":"products","status":"enqueued","type":"documentAdditionOrUpdate","enqueuedAt":"2024-01-02T03:04:05Z"}`))
	})

	h, err := client.SubmitBatch(context.Background(), products, OpAddOrUpdate, []fixer.Document{{"id": 1, "name": "Widget"}})
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if h.UID != 7 || h.Status != StatusEnqueued {
		t.Errorf("unexpected handle %+v", h)
	}
	if want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC); !h.EnqueuedAt.Equal(want) {
		t.Errorf("EnqueuedAt = %s, want %s", h.EnqueuedAt, want)
	}
}

func TestMeilisearchSubmitRejectsDeleteOperation(t *testing.T) {
	client := newMeiliServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := client.SubmitBatch(context.Background(), products, OpDelete, nil)
	if !errs.Is(err, errs.Invalid) {
		t.Errorf("expected Invalid, got %v", err)
	}
}

func TestMeilisearchFetchByIDs(t *testing.T) {
	client := newMeiliServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/products/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Filter string `json:"filter"`
			Limit  int    `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Filter != "id = 1 OR id = 2" || body.Limit != 2 {
			t.Errorf("unexpected search %+v", body)
		}
		w.Write([]byte(`{"hits":[{"id":1,"name":"Widget"}],"query":""}`))
	})

	found, err := client.FetchByIDs(context.Background(), products, []int64{1, 2})
	if err != nil {
		t.Fatalf("FetchByIDs() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected one hit, got %v", found)
	}
	if found[1]["name"] != "Widget" {
		t.Errorf("hit = %v", found[1])
	}
	if _, ok := found[2]; ok {
		t.Error("id 2 should be absent")
	}
}

func TestMeilisearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   errs.Kind
	}{
		{"rejected", http.StatusBadRequest, `{"code":"invalid_document_id"}`, errs.RemoteRejected},
		{"bad key", http.StatusForbidden, `{"code":"invalid_api_key"}`, errs.RemoteUnavailable},
		{"missing key", http.StatusUnauthorized, `{"code":"missing_authorization_header"}`, errs.RemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMeiliServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := client.DeleteBatch(context.Background(), products, []int64{1})
			if !errs.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			if !strings.Contains(err.Error(), tt.body) {
				t.Errorf("error should carry the raw body, got %q", err.Error())
			}
		})
	}
}

func TestMeilisearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client := NewMeilisearchClient(srv.URL, "", 20*time.Millisecond)
	_, err := client.SubmitBatch(context.Background(), products, OpAddOrUpdate, []fixer.Document{{"id": 1}})
	if !errs.Is(err, errs.RemoteUnavailable) {
		t.Fatalf("expected RemoteUnavailable, got %v", err)
	}
	if !IsTimeout(err) {
		t.Errorf("expected a timeout, got %v", err)
	}
}

func TestMeilisearchOperationStatus(t *testing.T) {
	client := newMeiliServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tasks/9":
			w.Write([]byte(`{"uid":9,"status":"failed","error":{"message":"document id missing","code":"missing_document_id"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"task_not_found"}`))
		}
	})

	status, detail, err := client.GetOperationStatus(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetOperationStatus() error = %v", err)
	}
	if status != StatusFailed || detail != "document id missing" {
		t.Errorf("got %s %q", status, detail)
	}

	if _, _, err := client.GetOperationStatus(context.Background(), 10); !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound for an unknown task, got %v", err)
	}
}

func TestMeilisearchCollectionManagement(t *testing.T) {
	var settings map[string]any
	client := newMeiliServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/products":
			w.Write([]byte(`{"uid":"products","primaryKey":"id"}`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"index_not_found"}`))
		case r.Method == http.MethodPatch:
			json.NewDecoder(r.Body).Decode(&settings)
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"taskUid":3,"status":"enqueued"}`))
		}
	})
	ctx := context.Background()

	if ok, err := client.CollectionExists(ctx, products); err != nil || !ok {
		t.Errorf("CollectionExists(products) = %v, %v", ok, err)
	}
	if ok, err := client.CollectionExists(ctx, Collection{Name: "missing"}); err != nil || ok {
		t.Errorf("CollectionExists(missing) = %v, %v", ok, err)
	}

	h, err := client.UpdateSettings(ctx, products, nil)
	if err != nil || h.UID != 3 {
		t.Fatalf("UpdateSettings() = %+v, %v", h, err)
	}
	if attrs, _ := settings["filterableAttributes"].([]any); len(attrs) != 1 || attrs[0] != "id" {
		t.Errorf("default settings not applied: %v", settings)
	}
}
