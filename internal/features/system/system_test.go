package system

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"docsync/internal/config"
	"docsync/internal/features/remote"
	"docsync/internal/features/remote/remotetest"
	"docsync/internal/features/task"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"
)

func TestTaskHubFiltersByEntityType(t *testing.T) {
	hub := NewTaskHub(zaptest.NewLogger(t))
	all := hub.subscribe("")
	products := hub.subscribe("product")
	defer hub.unsubscribe(all)
	defer hub.unsubscribe(products)

	hub.Notify(task.Event{TaskID: "a", EntityType: "country", Status: remote.StatusSucceeded})
	hub.Notify(task.Event{TaskID: "b", EntityType: "product", Status: remote.StatusFailed})

	if len(all.send) != 2 {
		t.Errorf("unfiltered subscriber got %d events, want 2", len(all.send))
	}
	if len(products.send) != 1 {
		t.Fatalf("product subscriber got %d events, want 1", len(products.send))
	}
	var ev task.Event
	if err := json.Unmarshal(<-products.send, &ev); err != nil || ev.TaskID != "b" || ev.Status != remote.StatusFailed {
		t.Errorf("unexpected event %+v (%v)", ev, err)
	}
}

func TestTaskHubNeverBlocks(t *testing.T) {
	hub := NewTaskHub(zaptest.NewLogger(t))
	slow := hub.subscribe("")

	for range subscriberBuffer + 10 {
		hub.Notify(task.Event{TaskID: "x"})
	}
	if len(slow.send) != subscriberBuffer {
		t.Errorf("buffered %d events, want %d", len(slow.send), subscriberBuffer)
	}

	hub.unsubscribe(slow)
	hub.unsubscribe(slow)
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after unsubscribe", hub.Subscribers())
	}
	hub.Notify(task.Event{TaskID: "after"})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	registry := remote.NewStaticRegistry(map[remote.Kind]remote.Client{remote.KindMeilisearch: remotetest.NewFakeClient()})
	ctrl := &HealthController{Store: fakePinger{}, Remotes: registry, Hub: NewTaskHub(zaptest.NewLogger(t))}

	app := fiber.New()
	NewHealthApi(ctrl, &config.Config{SkipAuth: true}).Setup(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status  string            `json:"status"`
		Remotes map[string]string `json:"remotes"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if body.Status != "ok" || body.Remotes["meilisearch"] != "configured" {
		t.Errorf("unexpected body %s", raw)
	}
	if _, ok := body.Remotes["sqltable"]; ok {
		t.Error("unconfigured remotes are not reported")
	}

	ctrl.Store = fakePinger{err: errors.New("no reachable servers")}
	resp, _ = app.Test(httptest.NewRequest("GET", "/health", nil))
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("status with store down = %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/api/me", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("/api/me with auth skipped = %d", resp.StatusCode)
	}
}
