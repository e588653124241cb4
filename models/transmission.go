package models

import "time"

// Transmission records one generated electronic-invoice document.
type Transmission struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	InvoiceID   uint      `json:"invoice_id" gorm:"not null;index"`
	IssuerCode  string    `json:"issuer_code" gorm:"size:32;not null;uniqueIndex:idx_transmissions_progressive,priority:1"`
	Progressive int64     `json:"progressive" gorm:"not null;uniqueIndex:idx_transmissions_progressive,priority:2"`
	FileName    string    `json:"file_name" gorm:"not null"`
	Digest      string    `json:"digest" gorm:"size:64;not null"` // sha256 hex of Document
	Document    []byte    `json:"-" gorm:"type:bytea;not null"`
	CreatedAt   time.Time `json:"created_at"`
}
