package models

import "time"

// Counter names.
const (
	CounterInvoiceNumber = "invoice_number" // scoped by (issuer, year)
	CounterTransmission  = "transmission"   // scoped by issuer; Year is 0
)

// Counter is a durable monotonic sequence.
type Counter struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	IssuerCode string    `json:"issuer_code" gorm:"size:32;not null;uniqueIndex:idx_counters_scope,priority:1"`
	Name       string    `json:"name" gorm:"size:32;not null;uniqueIndex:idx_counters_scope,priority:2"`
	Year       int       `json:"year" gorm:"not null;uniqueIndex:idx_counters_scope,priority:3"`
	Value      int64     `json:"value" gorm:"not null"`
	UpdatedAt  time.Time `json:"updated_at"`
}
