package system

import (
	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

type WebSocketController struct {
	Hub    *TaskHub
	Logger *zap.Logger
}

func NewWebSocketController(hub *TaskHub, logger *zap.Logger) *WebSocketController {
	return &WebSocketController{Hub: hub, Logger: logger}
}

// HandleTaskFeed streams task events as JSON text frames. The optional
// entity_type query parameter narrows the feed to one type.
func (h *WebSocketController) HandleTaskFeed(c *websocket.Conn) {
	sub := h.Hub.subscribe(c.Query("entity_type"))
	defer h.Hub.unsubscribe(sub)

	// Clients only listen; reading detects when they go away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-sub.send:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.Logger.Debug("Task feed write failed", zap.Error(err))
				return
			}
		}
	}
}
