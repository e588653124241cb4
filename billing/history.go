package billing

import (
	"context"
	"encoding/json"

	"labbilling-backend/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type historyRecorder struct{}

// record appends an immutable status change carrying a JSON snapshot of
// the invoice as it stands after the change.
func (historyRecorder) record(ctx context.Context, tx *gorm.DB, invoice *models.Invoice, from models.InvoiceStatus) error {
	snapshot, err := json.Marshal(invoice)
	if err != nil {
		return err
	}
	change := models.InvoiceStatusChange{
		InvoiceID:  invoice.ID,
		FromStatus: from,
		ToStatus:   invoice.Status,
		Snapshot:   datatypes.JSON(snapshot),
	}
	if err := tx.WithContext(ctx).Create(&change).Error; err != nil {
		return StoreError(err, "record status change")
	}
	return nil
}
