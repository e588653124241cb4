package database

import (
	"fmt"

	"labbilling-backend/models"

	"gorm.io/gorm"
)

// Migrate creates or updates every tenant table on db (dialect neutral).
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.TenantModels()...); err != nil {
		return fmt.Errorf("tenant automigrate failed: %w", err)
	}
	return nil
}

// MigrateTenantSchema applies (idempotent) schema migrations for a single
// Postgres tenant schema. It pins search_path to the tenant and performs:
// - AutoMigrate (tables/columns/index tags)
// - Money column types (NUMERIC(12,2))
// - CHECK constraints on money, statuses and the billed back-reference
// - Foreign keys that AutoMigrate does not derive
func MigrateTenantSchema(db *gorm.DB, schema string) error {
	if err := ValidateSchemaName(schema); err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`CREATE SCHEMA IF NOT EXISTS "` + schema + `"`).Error; err != nil {
			return fmt.Errorf("create schema failed: %w", err)
		}
		if err := tx.Exec(`SET LOCAL search_path = "` + schema + `", public`).Error; err != nil {
			return fmt.Errorf("set search_path failed: %w", err)
		}

		if err := Migrate(tx); err != nil {
			return err
		}

		alters := []string{
			`ALTER TABLE billable_elements  ALTER COLUMN default_price TYPE numeric(12,2)`,
			`ALTER TABLE price_list_entries ALTER COLUMN price         TYPE numeric(12,2)`,
			`ALTER TABLE invoices           ALTER COLUMN subtotal       TYPE numeric(12,2)`,
			`ALTER TABLE invoices           ALTER COLUMN discount_total TYPE numeric(12,2)`,
			`ALTER TABLE invoices           ALTER COLUMN tax_total      TYPE numeric(12,2)`,
			`ALTER TABLE invoices           ALTER COLUMN total          TYPE numeric(12,2)`,
			`ALTER TABLE invoice_lines      ALTER COLUMN unit_price     TYPE numeric(12,2)`,
			`ALTER TABLE invoice_lines      ALTER COLUMN discount       TYPE numeric(12,2)`,
			`ALTER TABLE invoice_lines      ALTER COLUMN amount         TYPE numeric(12,2)`,
			`ALTER TABLE payments           ALTER COLUMN amount         TYPE numeric(12,2)`,
		}
		for _, stmt := range alters {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("money type migration failed on: %s - %w", stmt, err)
			}
		}

		constraints := []struct{ table, name, def string }{
			{"billable_elements", "chk_billable_elements_price_nonneg", "CHECK (default_price >= 0)"},
			{"price_list_entries", "chk_price_list_entries_price_nonneg", "CHECK (price >= 0)"},
			{"invoices", "chk_invoices_discount_range", "CHECK (discount_percent BETWEEN 0 AND 100)"},
			{"invoices", "chk_invoices_tax_range", "CHECK (tax_rate BETWEEN 0 AND 100)"},
			{"invoices", "chk_invoices_total", "CHECK (total = subtotal - discount_total + tax_total)"},
			{"invoices", "chk_invoices_status", "CHECK (status IN ('draft','issued','sent','paid','cancelled'))"},
			{"test_records", "chk_test_records_billed_ref", "CHECK (billed = (invoice_id IS NOT NULL))"},
			{"payments", "chk_payments_amount_nonneg", "CHECK (amount >= 0)"},
			{"invoice_lines", "fk_invoice_lines_test_record", "FOREIGN KEY (test_record_id) REFERENCES test_records(id) ON UPDATE RESTRICT ON DELETE RESTRICT"},
			{"test_records", "fk_test_records_invoice", "FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON UPDATE RESTRICT ON DELETE RESTRICT"},
		}
		for _, c := range constraints {
			stmt := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint
		WHERE conrelid = '%s'::regclass
		  AND conname  = '%s'
	) THEN
		ALTER TABLE %s ADD CONSTRAINT %s %s;
	END IF;
END $$;`, c.table, c.name, c.table, c.name, c.def)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("constraint migration failed on %s: %w", c.name, err)
			}
		}
		return nil
	})
}
