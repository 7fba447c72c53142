package system

import (
	"docsync/internal/common/api"
	"docsync/internal/config"
	"docsync/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type WebSocketApi struct {
	Controller *WebSocketController
	config     *config.Config
}

func NewWebSocketApi(controller *WebSocketController, config *config.Config) api.Route {
	return &WebSocketApi{
		Controller: controller,
		config:     config,
	}
}

func (h *WebSocketApi) Setup(app *fiber.App) {
	app.Get("/api/ws/tasks",
		middleware.AuthMiddleware(h.config.SkipAuth),
		func(c *fiber.Ctx) error {
			if !websocket.IsWebSocketUpgrade(c) {
				return fiber.ErrUpgradeRequired
			}
			return c.Next()
		},
		websocket.New(h.Controller.HandleTaskFeed))
}
