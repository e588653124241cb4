package billing

import (
	"context"
	"time"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transitions is the complete table of allowed status changes.
var transitions = map[models.InvoiceStatus][]models.InvoiceStatus{
	models.InvoiceDraft:  {models.InvoiceIssued, models.InvoiceCancelled},
	models.InvoiceIssued: {models.InvoiceSent, models.InvoicePaid, models.InvoiceCancelled},
	models.InvoiceSent:   {models.InvoicePaid, models.InvoiceCancelled},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to models.InvoiceStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PermittedTransitions lists the statuses reachable from s.
func PermittedTransitions(s models.InvoiceStatus) []models.InvoiceStatus {
	return append([]models.InvoiceStatus(nil), transitions[s]...)
}

// Payment describes the settlement recorded by the paid transition.
type Payment struct {
	Method    string
	Reference string
	Note      string
	PaidAt    *time.Time
}

type transitionOptions struct {
	payment Payment
}

// TransitionOption customises a transition.
type TransitionOption func(*transitionOptions)

// WithPayment attaches payment details to a transition to paid.
func WithPayment(p Payment) TransitionOption {
	return func(o *transitionOptions) { o.payment = p }
}

// InvoiceStateMachine is the only writer of Invoice.Status.
type InvoiceStateMachine struct {
	releaseOnCancel bool
	history         *historyRecorder
	log             *zap.Logger
	now             func() time.Time
}

// NewInvoiceStateMachine builds the state machine. releaseOnCancel decides
// whether cancelling an invoice returns its tests to the billable pool.
func NewInvoiceStateMachine(releaseOnCancel bool, log *zap.Logger) *InvoiceStateMachine {
	return &InvoiceStateMachine{
		releaseOnCancel: releaseOnCancel,
		history:         &historyRecorder{},
		log:             log.Named("state"),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for transition timestamps.
func (m *InvoiceStateMachine) WithClock(now func() time.Time) *InvoiceStateMachine {
	m.now = now
	return m
}

// Transition moves invoice invoiceID to status to, applying the side effect
// of the edge. Disallowed edges fail with ErrInvalidTransition and leave
// the invoice untouched.
func (m *InvoiceStateMachine) Transition(ctx context.Context, db *gorm.DB, invoiceID uint, to models.InvoiceStatus, opts ...TransitionOption) (*models.Invoice, error) {
	if !to.Valid() {
		return nil, NewError(ErrInvalidStatus, "%q", to)
	}
	var o transitionOptions
	for _, opt := range opts {
		opt(&o)
	}

	var invoice models.Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&invoice, invoiceID).Error
		if err != nil {
			if database.IsNotFound(err) {
				return NewError(ErrNotFound, "invoice %d", invoiceID)
			}
			return StoreError(err, "lock invoice")
		}

		from := invoice.Status
		if !CanTransition(from, to) {
			return NewError(ErrInvalidTransition, "%s -> %s", from, to)
		}

		now := m.now()
		updates := map[string]any{"status": to, "updated_at": now}
		switch to {
		case models.InvoiceIssued:
			var lines int64
			if err := tx.Model(&models.InvoiceLine{}).Where("invoice_id = ?", invoice.ID).Count(&lines).Error; err != nil {
				return StoreError(err, "count invoice lines")
			}
			if lines == 0 {
				return NewError(ErrInvalidTransition, "invoice %d has no lines", invoice.ID)
			}
			updates["issued_at"] = now
			invoice.IssuedAt = &now
		case models.InvoiceSent:
			updates["sent_at"] = now
			invoice.SentAt = &now
		case models.InvoicePaid:
			paidAt := now
			if o.payment.PaidAt != nil {
				paidAt = o.payment.PaidAt.UTC()
			}
			updates["paid_at"] = paidAt
			invoice.PaidAt = &paidAt
			payment := models.Payment{
				InvoiceID: invoice.ID,
				Amount:    invoice.Total,
				Method:    o.payment.Method,
				Reference: o.payment.Reference,
				Note:      o.payment.Note,
				PaidAt:    paidAt,
			}
			if err := tx.Create(&payment).Error; err != nil {
				return StoreError(err, "record payment")
			}
		case models.InvoiceCancelled:
			updates["cancelled_at"] = now
			invoice.CancelledAt = &now
			if m.releaseOnCancel {
				if err := releaseTests(tx, invoice.ID); err != nil {
					return err
				}
			}
		}

		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", invoice.ID, from).
			UpdateColumns(updates)
		if res.Error != nil {
			return StoreError(res.Error, "update invoice status")
		}
		if res.RowsAffected != 1 {
			return NewError(ErrConcurrentUpdate, "invoice %d left %s", invoice.ID, from)
		}
		invoice.Status = to
		invoice.UpdatedAt = now

		if err := tx.Where("invoice_id = ?", invoice.ID).Order("position ASC").Find(&invoice.Lines).Error; err != nil {
			return StoreError(err, "load invoice lines")
		}
		if err := m.history.record(ctx, tx, &invoice, from); err != nil {
			return err
		}

		m.log.Info("invoice status changed",
			zap.Uint("invoice_id", invoice.ID),
			zap.String("number", invoice.Number),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return nil
	}, database.TxOptions(db)...)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// releaseTests returns the tests of a cancelled invoice to the eligible
// pool, keeping billed in step with a live invoice back-reference.
func releaseTests(tx *gorm.DB, invoiceID uint) error {
	err := tx.Model(&models.TestRecord{}).
		Where("invoice_id = ?", invoiceID).
		UpdateColumns(map[string]any{"billed": false, "invoice_id": nil}).Error
	return StoreError(err, "release billed tests")
}
