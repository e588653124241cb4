package billing

import (
	"context"
	"errors"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceResolver returns the effective price of an element for a client:
// the client's price list entry when there is one, the catalog default
// otherwise. It only reads, so it is safe to call concurrently and
// repeatedly; callers freeze the result into an invoice line.
type PriceResolver struct {
	catalog PriceCatalog
}

func NewPriceResolver(catalog PriceCatalog) *PriceResolver {
	return &PriceResolver{catalog: catalog}
}

// Resolve prices one (kind, id) element for client.
func (r *PriceResolver) Resolve(ctx context.Context, db *gorm.DB, client *models.Client, kind models.ElementKind, id string) (decimal.Decimal, error) {
	if client.PriceListID != nil {
		var entry models.PriceListEntry
		err := db.WithContext(ctx).
			Where("price_list_id = ? AND element_kind = ? AND element_id = ?", *client.PriceListID, kind, id).
			Take(&entry).Error
		switch {
		case err == nil:
			return entry.Price, nil
		case !database.IsNotFound(err):
			return decimal.Zero, StoreError(err, "load price list entry")
		}
	}

	price, err := r.catalog.DefaultPrice(ctx, db, kind, id)
	if err != nil {
		if errors.Is(err, ErrElementNotFound) {
			return decimal.Zero, NewError(ErrPriceUnresolved, "client %d, element %s/%s", client.Id, kind, id)
		}
		return decimal.Zero, err
	}
	return price, nil
}
