package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus is mutated only by the billing state machine.
type InvoiceStatus string

const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceIssued    InvoiceStatus = "issued"
	InvoiceSent      InvoiceStatus = "sent"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceIssued, InvoiceSent, InvoicePaid, InvoiceCancelled:
		return true
	}
	return false
}

// Invoice bills a set of test records of one client.
type Invoice struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	IssuerCode string `json:"issuer_code" gorm:"size:32;not null;uniqueIndex:idx_invoices_issuer_number,priority:1"`
	Number     string `json:"number" gorm:"size:32;not null;uniqueIndex:idx_invoices_issuer_number,priority:2"`
	Year       int    `json:"year" gorm:"not null"`
	Sequence   int64  `json:"sequence" gorm:"not null"`
	ClientID   uint   `json:"client_id" gorm:"not null;index"`
	Client     Client `json:"client" gorm:"foreignKey:ClientID;references:Id"`

	Lines           []InvoiceLine   `json:"lines" gorm:"foreignKey:InvoiceID;constraint:OnDelete:RESTRICT"`
	Subtotal        decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	DiscountPercent decimal.Decimal `json:"discount_percent" gorm:"type:numeric(5,2);not null"`
	DiscountTotal   decimal.Decimal `json:"discount_total" gorm:"type:numeric(12,2);not null"`
	TaxRate         decimal.Decimal `json:"tax_rate" gorm:"type:numeric(5,2);not null"`
	TaxTotal        decimal.Decimal `json:"tax_total" gorm:"type:numeric(12,2);not null"`
	Total           decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`

	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`

	Status      InvoiceStatus `json:"status" gorm:"size:20;not null;index"`
	IssuedAt    *time.Time    `json:"issued_at"`
	SentAt      *time.Time    `json:"sent_at"`
	PaidAt      *time.Time    `json:"paid_at"`
	CancelledAt *time.Time    `json:"cancelled_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TaxableBase is the post-discount amount the tax rate applies to.
func (i *Invoice) TaxableBase() decimal.Decimal {
	return i.Subtotal.Sub(i.DiscountTotal)
}

// InvoiceLine is a frozen snapshot of one billed test.
type InvoiceLine struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	InvoiceID    uint            `json:"-" gorm:"not null;index"`
	Position     int             `json:"position" gorm:"not null"`
	TestRecordID uint            `json:"test_record_id" gorm:"not null;index"`
	Description  string          `json:"description" gorm:"not null"`
	UnitPrice    decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Discount     decimal.Decimal `json:"discount" gorm:"type:numeric(12,2);not null"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
}

// InvoiceStatusChange is an immutable record of one state-machine transition.
type InvoiceStatusChange struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	InvoiceID  uint           `json:"invoice_id" gorm:"not null;index"`
	FromStatus InvoiceStatus  `json:"from_status" gorm:"size:20"`
	ToStatus   InvoiceStatus  `json:"to_status" gorm:"size:20;not null"`
	Snapshot   datatypes.JSON `json:"snapshot" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Payment is recorded when an invoice transitions to paid.
type Payment struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	InvoiceID uint            `json:"invoice_id" gorm:"index:idx_payments_invoice_paid_at,priority:1"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Note      string          `json:"note"`
	PaidAt    time.Time       `json:"paid_at" gorm:"index:idx_payments_invoice_paid_at,priority:2"`
	CreatedAt time.Time       `json:"created_at"`
}
