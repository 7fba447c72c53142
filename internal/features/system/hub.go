package system

import (
	"encoding/json"
	"sync"

	"docsync/internal/features/task"

	"go.uber.org/zap"
)

// subscriberBuffer is how many events a slow client may lag behind before
// events are dropped for it.
const subscriberBuffer = 64

type subscriber struct {
	entityType string
	send       chan []byte
}

// TaskHub fans task events out to websocket subscribers.
type TaskHub struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewTaskHub(logger *zap.Logger) *TaskHub {
	return &TaskHub{logger: logger, subs: make(map[*subscriber]struct{})}
}

// Notify implements task.Notifier. It never blocks the tracker.
func (h *TaskHub) Notify(ev task.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("Failed to encode task event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.entityType != "" && sub.entityType != ev.EntityType {
			continue
		}
		select {
		case sub.send <- payload:
		default:
			h.logger.Debug("Dropping task event for slow subscriber", zap.String("task_id", ev.TaskID))
		}
	}
}

// subscribe registers a listener; entityType "" receives every event.
func (h *TaskHub) subscribe(entityType string) *subscriber {
	sub := &subscriber{entityType: entityType, send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *TaskHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of connected listeners.
func (h *TaskHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
