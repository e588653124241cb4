package middlewares

import (
	"labbilling-backend/database"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	localTx          = "tx"
	localAfterCommit = "after_commit"
)

// TenantTx opens a per-request DB transaction pinned to the tenant schema.
// Order: run AFTER Authenticate (so the schema is present) and AFTER
// Idempotency (so idempotency records aren't tied to the handler TX).
// A handler error or an error status rolls the transaction back.
func TenantTx(db *gorm.DB, log *zap.Logger) fiber.Handler {
	log = log.Named("tx")

	return func(c *fiber.Ctx) (err error) {
		schema := Schema(c)
		if schema == "" {
			return c.Next()
		}

		tx := db.WithContext(c.UserContext()).Begin(database.TxOptions(db)...)
		if tx.Error != nil {
			log.Error("begin failed", zap.Error(tx.Error))
			return fiber.NewError(fiber.StatusInternalServerError, "failed to begin transaction")
		}

		defer func() {
			if r := recover(); r != nil {
				_ = tx.Rollback()
				panic(r)
			}
			if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
				_ = tx.Rollback()
				return
			}
			if e := tx.Commit().Error; e != nil {
				log.Error("commit failed", zap.String("schema", schema), zap.Error(e))
				err = fiber.NewError(fiber.StatusInternalServerError, "transaction commit failed")
				return
			}
			if hooks, ok := c.Locals(localAfterCommit).([]func()); ok {
				for _, fn := range hooks {
					fn()
				}
			}
		}()

		if e := database.PinTenant(tx, schema); e != nil {
			log.Error("schema pin failed", zap.String("schema", schema), zap.Error(e))
			return fiber.NewError(fiber.StatusInternalServerError, "failed to set tenant schema")
		}

		c.Locals(localTx, tx)
		return c.Next()
	}
}

// AfterCommit queues fn to run once the request transaction has committed.
// Nothing runs when the transaction rolls back.
func AfterCommit(c *fiber.Ctx, fn func()) {
	hooks, _ := c.Locals(localAfterCommit).([]func())
	c.Locals(localAfterCommit, append(hooks, fn))
}
