package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceList is a client-specific override table layered over catalog
// defaults. A list may be shared by several clients.
type PriceList struct {
	Id      uint             `json:"id" gorm:"primaryKey"`
	Name    string           `json:"name" gorm:"not null;unique" validate:"required"`
	Entries []PriceListEntry `json:"entries" gorm:"foreignKey:PriceListID;constraint:OnDelete:CASCADE"`
}

// PriceListEntry overrides the price of one (kind, id) element.
type PriceListEntry struct {
	Id          uint            `json:"id" gorm:"primaryKey"`
	PriceListID uint            `json:"-" gorm:"not null;uniqueIndex:idx_price_list_entries_element,priority:1"`
	ElementKind ElementKind     `json:"element_kind" gorm:"size:20;not null;uniqueIndex:idx_price_list_entries_element,priority:2" validate:"required,oneof=analyte panel category_fee"`
	ElementID   string          `json:"element_id" gorm:"size:64;not null;uniqueIndex:idx_price_list_entries_element,priority:3" validate:"required"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Position    int             `json:"position"`
}

func (entry *PriceListEntry) BeforeSave(tx *gorm.DB) (err error) {
	if entry.Price.IsNegative() {
		return ErrNegativePrice
	}
	return Validate(entry)
}
