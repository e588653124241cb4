package middlewares

import (
	"net/http/httptest"
	"testing"

	"labbilling-backend/database"
	"labbilling-backend/fixtures"
	"labbilling-backend/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTenantTx_CommitRunsHooksRollbackDoesNot(t *testing.T) {
	db := fixtures.NewTestDB(t)
	log := zap.NewNop()

	var committed []string
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(localSchema, "tenant_a")
		return c.Next()
	})
	app.Use(TenantTx(db, log))
	app.Post("/:name/:fail", func(c *fiber.Ctx) error {
		tx, err := database.TenantDB(c)
		if err != nil {
			return err
		}
		name := c.Params("name")
		list := models.PriceList{Name: name}
		if err := tx.Create(&list).Error; err != nil {
			return err
		}
		AfterCommit(c, func() { committed = append(committed, name) })
		if c.Params("fail") == "yes" {
			return fiber.NewError(fiber.StatusConflict, "refused")
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/kept/no", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/dropped/yes", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	assert.Equal(t, []string{"kept"}, committed)
	var names []string
	require.NoError(t, db.Model(&models.PriceList{}).Pluck("name", &names).Error)
	assert.Equal(t, []string{"kept"}, names)
}
