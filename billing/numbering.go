package billing

import (
	"context"
	"fmt"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counters allocates values from the durable counters table. Allocation
// must run inside the transaction that persists the value's consumer, so a
// rollback returns the number and the sequence stays gap-free.
type Counters struct{}

func NewCounters() *Counters {
	return &Counters{}
}

// FormatInvoiceNumber renders YYYY-NNNN; the counter widens past 9999.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("%d-%04d", year, seq)
}

// NextInvoiceNumber allocates the next invoice sequence of issuer in year.
func (c *Counters) NextInvoiceNumber(ctx context.Context, tx *gorm.DB, issuer string, year int) (int64, error) {
	return c.next(ctx, tx, issuer, models.CounterInvoiceNumber, year)
}

// NextProgressive allocates the next transmission progressive of issuer.
func (c *Counters) NextProgressive(ctx context.Context, tx *gorm.DB, issuer string) (int64, error) {
	return c.next(ctx, tx, issuer, models.CounterTransmission, 0)
}

// next locks the counter row, then bumps it with a compare-and-swap so that
// a concurrent writer is detected even where FOR UPDATE is a no-op.
func (c *Counters) next(ctx context.Context, tx *gorm.DB, issuer, name string, year int) (int64, error) {
	db := tx.WithContext(ctx)

	var counter models.Counter
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("issuer_code = ? AND name = ? AND year = ?", issuer, name, year).
		Take(&counter).Error
	if database.IsNotFound(err) {
		counter = models.Counter{IssuerCode: issuer, Name: name, Year: year, Value: 1}
		if err := db.Create(&counter).Error; err != nil {
			// A concurrent first allocation won the unique index.
			return 0, StoreError(err, "create counter")
		}
		return 1, nil
	}
	if err != nil {
		return 0, StoreError(err, "lock counter")
	}

	res := db.Model(&models.Counter{}).
		Where("id = ? AND value = ?", counter.ID, counter.Value).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, StoreError(res.Error, "bump counter")
	}
	if res.RowsAffected != 1 {
		return 0, NewError(ErrCounterCollision, "%s/%s/%d at %d", issuer, name, year, counter.Value)
	}
	return counter.Value + 1, nil
}
