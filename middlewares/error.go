package middlewares

import (
	"errors"

	"labbilling-backend/billing"
	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var kindStatus = map[billing.Kind]int{
	billing.KindInput:       fiber.StatusBadRequest,
	billing.KindNotFound:    fiber.StatusNotFound,
	billing.KindState:       fiber.StatusConflict,
	billing.KindConsistency: fiber.StatusUnprocessableEntity,
	billing.KindConcurrency: fiber.StatusConflict,
}

// ErrorHandler centralizes error responses and keeps messages sanitized.
// Billing errors carry their kind and whether a retry may succeed.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	log = log.Named("http")

	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			out := make(map[string]string, len(ve))
			for _, fe := range ve {
				out[fe.Field()] = fe.Tag()
			}
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "validation failed",
				"errors":  out,
			})
		}

		var be *billing.Error
		if errors.As(err, &be) {
			status, ok := kindStatus[be.Kind]
			if !ok {
				status = fiber.StatusInternalServerError
			}
			if be.Retryable() {
				log.Warn("request lost a concurrent update", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(status).JSON(fiber.Map{
				"message":   be.Error(),
				"kind":      be.Kind.String(),
				"retryable": be.Retryable(),
			})
		}

		switch {
		case errors.Is(err, models.ErrNegativePrice), errors.Is(err, models.ErrMissingTaxID):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"message": err.Error()})
		case database.IsNotFound(err):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "record not found"})
		case database.IsDuplicateKey(err):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "record already exists"})
		case database.IsSerializationFailure(err):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message":   "record changed concurrently",
				"kind":      billing.KindConcurrency.String(),
				"retryable": true,
			})
		}

		log.Error("internal error", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal server error",
		})
	}
}
