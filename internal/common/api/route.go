package api

import "github.com/gofiber/fiber/v2"

// Route is implemented by every feature's XxxApi and collected by fx.
type Route interface {
	Setup(app *fiber.App)
}
