package middlewares

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"labbilling-backend/billing"
	"labbilling-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestErrorHandler_Statuses(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
	}

	tests := []struct {
		name      string
		err       error
		status    int
		kind      string
		retryable any
	}{
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "short and stout"), fiber.StatusTeapot, "", nil},
		{"validation", models.Validate(&payload{}), fiber.StatusUnprocessableEntity, "", nil},
		{"input", billing.NewError(billing.ErrInvalidDiscount, "got 120"), fiber.StatusBadRequest, "input", false},
		{"not found", billing.NewError(billing.ErrNotFound, "invoice 3"), fiber.StatusNotFound, "not_found", false},
		{"state", fmt.Errorf("wrapped: %w", billing.NewError(billing.ErrInvalidTransition, "paid -> cancelled")), fiber.StatusConflict, "state", false},
		{"consistency", billing.NewError(billing.ErrPriceUnresolved, "x"), fiber.StatusUnprocessableEntity, "consistency", false},
		{"concurrency", billing.NewError(billing.ErrAlreadyBilled, "test 1"), fiber.StatusConflict, "concurrency", true},
		{"negative price", models.ErrNegativePrice, fiber.StatusUnprocessableEntity, "", nil},
		{"gorm not found", gorm.ErrRecordNotFound, fiber.StatusNotFound, "", nil},
		{"duplicate", gorm.ErrDuplicatedKey, fiber.StatusConflict, "", nil},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.NotEmpty(t, body["message"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
				assert.Equal(t, tt.retryable, body["retryable"])
			}
		})
	}
}

func TestErrorHandler_HidesInternalDetail(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/", func(c *fiber.Ctx) error { return errors.New("dial tcp 10.0.0.5:5432: refused") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(raw), "10.0.0.5")
}
