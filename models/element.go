package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ElementKind tags the billable element union.
type ElementKind string

const (
	ElementAnalyte     ElementKind = "analyte"
	ElementPanel       ElementKind = "panel"
	ElementCategoryFee ElementKind = "category_fee"
)

// Valid reports whether k is one of the known element kinds.
func (k ElementKind) Valid() bool {
	switch k {
	case ElementAnalyte, ElementPanel, ElementCategoryFee:
		return true
	}
	return false
}

// BillableElement is a priced catalog item: a single analyte, a bundled
// panel or a per-category flat fee. Keyed by (kind, id).
type BillableElement struct {
	Kind         ElementKind     `json:"kind" gorm:"primaryKey;size:20" validate:"required,oneof=analyte panel category_fee"`
	Id           string          `json:"id" gorm:"primaryKey;size:64"`
	Name         string          `json:"name" gorm:"not null" validate:"required"`
	Description  string          `json:"description"`
	DefaultPrice decimal.Decimal `json:"default_price" gorm:"type:numeric(12,2);not null"`
	Active       bool            `json:"active"`
}

func (element *BillableElement) BeforeCreate(tx *gorm.DB) (err error) {
	if element.Id == "" {
		element.Id = uuid.NewString()
	}
	return
}

func (element *BillableElement) BeforeSave(tx *gorm.DB) (err error) {
	if element.DefaultPrice.IsNegative() {
		return ErrNegativePrice
	}
	return Validate(element)
}
