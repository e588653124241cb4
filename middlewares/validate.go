package middlewares

import (
	"labbilling-backend/models"

	"github.com/gofiber/fiber/v2"
)

// BindAndValidate parses the request body into dst and validates it.
// Returns fiber.ErrBadRequest for parse errors and a validator.ValidationErrors for validation issues.
func BindAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return models.Validate(dst)
}
