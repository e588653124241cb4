package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxKeyLength      = 128
)

// Idempotency processes Idempotency-Key for mutating HTTP methods in a
// schema-safe way. The first request under a key runs; completed responses
// are replayed to later requests with the same key, and a key reused with a
// different request is refused. Each phase uses its own short transaction
// pinned to the tenant schema.
func Idempotency(db *gorm.DB, log *zap.Logger) fiber.Handler {
	log = log.Named("idempotency")

	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyHeader))
		if key == "" {
			return c.Next()
		}
		if len(key) > maxKeyLength {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key too long")
		}

		schema, subject := Schema(c), Subject(c)
		if schema == "" || subject == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
		}

		path := c.OriginalURL()
		reqHash := requestHash(method, path, c.Body(), schema, subject)
		ctx := c.UserContext()

		var existing models.IdempotencyKey
		created := false
		err := database.WithTenantTx(ctx, db, schema, func(tx *gorm.DB) error {
			err := tx.Where("key = ?", key).Take(&existing).Error
			if err == nil {
				return nil
			}
			if !database.IsNotFound(err) {
				return err
			}
			existing = models.IdempotencyKey{
				Key:         key,
				RequestHash: reqHash,
				Method:      method,
				Path:        path,
				Subject:     subject,
			}
			if err := tx.Create(&existing).Error; err != nil {
				return err
			}
			created = true
			return nil
		})
		if err != nil {
			if database.IsDuplicateKey(err) {
				return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is in progress")
			}
			log.Error("idempotency lookup failed", zap.Error(err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
		}

		if existing.RequestHash != reqHash {
			return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
		}
		if !created {
			if !existing.Completed() {
				return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is in progress")
			}
			if existing.ContentType != "" {
				c.Set(fiber.HeaderContentType, existing.ContentType)
			}
			c.Set("Idempotent-Replayed", "true")
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}

		if err := c.Next(); err != nil {
			forget(c, db, schema, key, log)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			forget(c, db, schema, key, log)
			return nil
		}

		body := c.Response().Body()
		blob := make([]byte, len(body))
		copy(blob, body)
		now := time.Now().UTC()
		err = database.WithTenantTx(ctx, db, schema, func(tx *gorm.DB) error {
			return tx.Model(&models.IdempotencyKey{}).
				Where("key = ?", key).
				UpdateColumns(map[string]any{
					"response_status": status,
					"content_type":    string(c.Response().Header.ContentType()),
					"response_body":   blob,
					"completed_at":    &now,
				}).Error
		})
		if err != nil {
			log.Warn("storing idempotent response failed", zap.String("key", key), zap.Error(err))
		}
		return nil
	}
}

// forget drops a pending key so the request can be retried.
func forget(c *fiber.Ctx, db *gorm.DB, schema, key string, log *zap.Logger) {
	err := database.WithTenantTx(c.UserContext(), db, schema, func(tx *gorm.DB) error {
		return tx.Where("key = ? AND response_status = ?", key, 0).Delete(&models.IdempotencyKey{}).Error
	})
	if err != nil {
		log.Warn("releasing idempotency key failed", zap.String("key", key), zap.Error(err))
	}
}

func requestHash(method, path string, body []byte, schema, subject string) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path), body, []byte(schema), []byte(subject)} {
		h.Write(part)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
