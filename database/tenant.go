package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var schemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidateSchemaName guards the identifiers we splice into search_path.
func ValidateSchemaName(schema string) error {
	if !schemaName.MatchString(schema) {
		return fmt.Errorf("invalid tenant schema name %q", schema)
	}
	return nil
}

// PinTenant sets the tenant search_path for the current transaction only.
// A no-op on stores without schemas.
func PinTenant(tx *gorm.DB, schema string) error {
	if !IsPostgres(tx) {
		return nil
	}
	if err := ValidateSchemaName(schema); err != nil {
		return err
	}
	if err := tx.Exec(`SET LOCAL search_path = "` + schema + `", public`).Error; err != nil {
		return fmt.Errorf("set search_path failed: %w", err)
	}
	return nil
}

// TxOptions are the isolation settings every tenant transaction uses,
// shaped for gorm's variadic Transaction/Begin.
func TxOptions(db *gorm.DB) []*sql.TxOptions {
	if !IsPostgres(db) {
		return nil
	}
	return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead}}
}

// WithTenantTx runs fn in a transaction pinned to schema.
func WithTenantTx(ctx context.Context, db *gorm.DB, schema string, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := PinTenant(tx, schema); err != nil {
			return err
		}
		return fn(tx)
	}, TxOptions(db)...)
}

// TenantDB returns the per-request transaction opened by middlewares.TenantTx.
func TenantDB(c *fiber.Ctx) (*gorm.DB, error) {
	if v := c.Locals("tx"); v != nil {
		if tx, ok := v.(*gorm.DB); ok && tx != nil {
			return tx, nil
		}
	}
	return nil, errors.New("tenant transaction missing")
}
