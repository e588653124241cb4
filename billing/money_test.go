package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name                          string
		lines                         []string
		discount, tax                 string
		subtotal, disc, taxAmt, total string
	}{
		{"discount then tax", []string{"120.00", "85.00", "40.00"}, "10", "22", "245.00", "24.50", "48.51", "269.01"},
		{"no discount", []string{"100.00"}, "0", "22", "100.00", "0.00", "22.00", "122.00"},
		{"zero tax", []string{"19.99", "0.01"}, "0", "0", "20.00", "0.00", "0.00", "20.00"},
		{"half cent rounds up", []string{"0.05"}, "10", "0", "0.05", "0.00", "0.00", "0.05"},
		{"uneven discount and tax", []string{"123.45"}, "15", "22", "123.45", "18.52", "23.09", "128.02"},
		{"full discount", []string{"50.00"}, "100", "22", "50.00", "50.00", "0.00", "0.00"},
		{"empty", nil, "5", "22", "0.00", "0.00", "0.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amounts := make([]decimal.Decimal, len(tt.lines))
			for i, l := range tt.lines {
				amounts[i] = d(l)
			}

			got, err := ComputeTotals(amounts, d(tt.discount), d(tt.tax))
			require.NoError(t, err)
			assert.Equal(t, tt.subtotal, got.Subtotal.StringFixed(2))
			assert.Equal(t, tt.disc, got.Discount.StringFixed(2))
			assert.Equal(t, tt.taxAmt, got.Tax.StringFixed(2))
			assert.Equal(t, tt.total, got.Total.StringFixed(2))
			assert.True(t, got.Total.Equal(got.TaxableBase().Add(got.Tax)))
		})
	}
}

func TestComputeTotals_TotalRoundedOnce(t *testing.T) {
	subtotals := []string{"0.05", "1.05", "19.99", "123.45", "245.00", "999.99", "1234.57"}
	rates := [][2]string{{"0", "0"}, {"10", "0"}, {"50", "0"}, {"50", "22"}, {"15", "22"}, {"10", "22"}, {"33.33", "4"}, {"100", "22"}}

	for _, s := range subtotals {
		for _, r := range rates {
			discount, tax := d(r[0]), d(r[1])
			got, err := ComputeTotals([]decimal.Decimal{d(s)}, discount, tax)
			require.NoError(t, err)

			want := Round(d(s).
				Mul(decimal.NewFromInt(1).Sub(discount.Div(hundred))).
				Mul(decimal.NewFromInt(1).Add(tax.Div(hundred))))
			assert.Equal(t, want.StringFixed(2), got.Total.StringFixed(2), "subtotal=%s d=%s t=%s", s, r[0], r[1])
			assert.True(t, got.Subtotal.Sub(got.Discount).Add(got.Tax).Equal(got.Total), "subtotal=%s d=%s t=%s", s, r[0], r[1])
			assert.False(t, got.Tax.IsNegative())
			assert.False(t, got.Discount.IsNegative())
			if tax.IsZero() {
				assert.True(t, got.Tax.IsZero())
			}
		}
	}
}

func TestComputeTotals_RejectsOutOfRange(t *testing.T) {
	_, err := ComputeTotals(nil, d("-1"), d("22"))
	assert.True(t, errors.Is(err, ErrInvalidDiscount))

	_, err = ComputeTotals(nil, d("100.01"), d("22"))
	assert.True(t, errors.Is(err, ErrInvalidDiscount))

	_, err = ComputeTotals(nil, d("0"), d("101"))
	assert.True(t, errors.Is(err, ErrInvalidTaxRate))
	assert.Equal(t, KindInput, KindOf(err))
}

func TestRound(t *testing.T) {
	assert.Equal(t, "2.68", Round(d("2.675")).StringFixed(2))
	assert.Equal(t, "2.67", Round(d("2.6749")).StringFixed(2))
	assert.Equal(t, "0.01", Round(d("0.005")).StringFixed(2))
}
