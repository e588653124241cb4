package billing

import (
	"context"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceCatalog looks up billable elements and their default prices.
// Implementations must be read only.
type PriceCatalog interface {
	Element(ctx context.Context, db *gorm.DB, kind models.ElementKind, id string) (*models.BillableElement, error)
	DefaultPrice(ctx context.Context, db *gorm.DB, kind models.ElementKind, id string) (decimal.Decimal, error)
}

// GormCatalog reads the billable_elements table.
type GormCatalog struct{}

// NewCatalog returns the store-backed catalog.
func NewCatalog() *GormCatalog {
	return &GormCatalog{}
}

// Element returns the element regardless of its active flag: inactive
// elements still price tests that already carry them.
func (GormCatalog) Element(ctx context.Context, db *gorm.DB, kind models.ElementKind, id string) (*models.BillableElement, error) {
	if !kind.Valid() {
		return nil, NewError(ErrElementNotFound, "unknown element kind %q", kind)
	}
	var element models.BillableElement
	err := db.WithContext(ctx).
		Where("kind = ? AND id = ?", kind, id).
		Take(&element).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, NewError(ErrElementNotFound, "%s/%s", kind, id)
		}
		return nil, StoreError(err, "load billable element")
	}
	return &element, nil
}

func (c GormCatalog) DefaultPrice(ctx context.Context, db *gorm.DB, kind models.ElementKind, id string) (decimal.Decimal, error) {
	element, err := c.Element(ctx, db, kind, id)
	if err != nil {
		return decimal.Zero, err
	}
	return element.DefaultPrice, nil
}
