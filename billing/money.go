package billing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round rounds to cents, half away from zero (half-up for the non-negative
// amounts billed here).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Totals are the aggregate monetary fields of an invoice.
type Totals struct {
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	Discount        decimal.Decimal
	TaxRate         decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
}

// TaxableBase is the post-discount amount.
func (t Totals) TaxableBase() decimal.Decimal {
	return t.Subtotal.Sub(t.Discount)
}

// ValidatePercent checks discount and tax percentages before anything is
// touched.
func ValidatePercent(discountPercent, taxRate decimal.Decimal) error {
	if discountPercent.IsNegative() || discountPercent.GreaterThan(hundred) {
		return NewError(ErrInvalidDiscount, "got %s", discountPercent)
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
		return NewError(ErrInvalidTaxRate, "got %s", taxRate)
	}
	return nil
}

// ComputeTotals aggregates line amounts: the discount is taken off the
// subtotal, the tax rate applies to what remains. The total is
// round(subtotal × (1 − d/100) × (1 + t/100)); the discounted base is
// rounded the same way and the tax is what separates the two, so
// subtotal − discount + tax == total holds to the cent.
func ComputeTotals(lineAmounts []decimal.Decimal, discountPercent, taxRate decimal.Decimal) (Totals, error) {
	if err := ValidatePercent(discountPercent, taxRate); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for _, amount := range lineAmounts {
		subtotal = subtotal.Add(amount)
	}
	subtotal = Round(subtotal)

	kept := hundred.Sub(discountPercent)
	base := Round(subtotal.Mul(kept).Div(hundred))
	total := Round(subtotal.Mul(kept).Mul(hundred.Add(taxRate)).Div(hundred.Mul(hundred)))

	return Totals{
		Subtotal:        subtotal,
		DiscountPercent: discountPercent,
		Discount:        subtotal.Sub(base),
		TaxRate:         taxRate,
		Tax:             total.Sub(base),
		Total:           total,
	}, nil
}
