package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSMiddleware allows the admin UI origins to call the API. Credentials are
// only allowed for an explicit origin list.
func CORSMiddleware(origins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Content-Encoding,Authorization",
		AllowCredentials: origins != "*",
	})
}
