package api

import (
	"docsync/internal/common/errs"

	"github.com/gofiber/fiber/v2"
)

// Error answers with the status matching err's kind.
func Error(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}
	if kind := errs.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	if status := errs.RemoteStatus(err); status != 0 {
		body["remote_status"] = status
	}
	return c.Status(errs.HTTPStatus(err)).JSON(body)
}
