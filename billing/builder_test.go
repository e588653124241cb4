package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"labbilling-backend/fixtures"
	"labbilling-backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBatch_TotalsAndLines(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.PriceList(t, e.db, &client, map[string]string{
		"panel/LIPID":       "50.00",
		"analyte/GLU":       "75.00",
		"category_fee/DRAW": "120.00",
	})
	march := fixtures.Day(2025, time.March, 2)

	t1 := fixtures.Test(t, e.db, client.Id, models.TestSigned, march, ref(models.ElementPanel, "LIPID"))
	t2 := fixtures.Test(t, e.db, client.Id, models.TestReported, march.AddDate(0, 0, 1), ref(models.ElementAnalyte, "GLU"))
	t3 := fixtures.Test(t, e.db, client.Id, models.TestSigned, march.AddDate(0, 0, 2), ref(models.ElementCategoryFee, "DRAW"))

	invoice, err := e.builder.BuildBatch(context.Background(), e.db, client.Id, Period{}, BuildOptions{DiscountPercent: d("10")})
	require.NoError(t, err)

	assert.Equal(t, "2025-0001", invoice.Number)
	assert.Equal(t, models.InvoiceDraft, invoice.Status)
	assert.Equal(t, "245.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "24.50", invoice.DiscountTotal.StringFixed(2))
	assert.Equal(t, "48.51", invoice.TaxTotal.StringFixed(2))
	assert.Equal(t, "269.01", invoice.Total.StringFixed(2))

	require.Len(t, invoice.Lines, 3)
	for i, want := range []models.TestRecord{t1, t2, t3} {
		assert.Equal(t, want.Id, invoice.Lines[i].TestRecordID)
		assert.Equal(t, []string{"50.00", "75.00", "120.00"}[i], invoice.Lines[i].Amount.StringFixed(2))
		assert.Equal(t, i+1, invoice.Lines[i].Position)
		assert.True(t, invoice.Lines[i].Discount.IsZero())
	}

	var tests []models.TestRecord
	require.NoError(t, e.db.Where("client_id = ?", client.Id).Find(&tests).Error)
	for _, tr := range tests {
		assert.True(t, tr.Billed)
		require.NotNil(t, tr.InvoiceID)
		assert.Equal(t, invoice.ID, *tr.InvoiceID)
	}

	var history []models.InvoiceStatusChange
	require.NoError(t, e.db.Where("invoice_id = ?", invoice.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, models.InvoiceDraft, history[0].ToStatus)
}

func TestBuildBatch_LineSumsElementsWithPriceList(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.PriceList(t, e.db, &client, map[string]string{"analyte/HBA1C": "25.00"})

	fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 2),
		ref(models.ElementPanel, "LIPID"), ref(models.ElementAnalyte, "HBA1C"))

	invoice, err := e.builder.BuildBatch(context.Background(), e.db, client.Id, Period{}, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "145.00", invoice.Lines[0].Amount.StringFixed(2))
	assert.Contains(t, invoice.Lines[0].Description, "ACC-")
	assert.Equal(t, "176.90", invoice.Total.StringFixed(2))
}

func TestBuildBatch_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 2), ref(models.ElementAnalyte, "GLU"))
	ctx := context.Background()

	_, err := e.builder.BuildBatch(ctx, e.db, client.Id, Period{}, BuildOptions{})
	require.NoError(t, err)

	_, err = e.builder.BuildBatch(ctx, e.db, client.Id, Period{}, BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNothingToBill))

	var count int64
	require.NoError(t, e.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBuildBatch_UnresolvedPriceRollsBack(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 2), ref(models.ElementAnalyte, "GLU"))
	fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 3), ref(models.ElementAnalyte, "MISSING"))

	_, err := e.builder.BuildBatch(context.Background(), e.db, client.Id, Period{}, BuildOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrElementNotFound))

	var invoices, billed, counters int64
	require.NoError(t, e.db.Model(&models.Invoice{}).Count(&invoices).Error)
	require.NoError(t, e.db.Model(&models.TestRecord{}).Where("billed = ?", true).Count(&billed).Error)
	require.NoError(t, e.db.Model(&models.Counter{}).Count(&counters).Error)
	assert.Zero(t, invoices)
	assert.Zero(t, billed)
	assert.Zero(t, counters)
}

func TestBuildBatch_RejectsBadInput(t *testing.T) {
	e := newEnv(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	ctx := context.Background()

	_, err := e.builder.BuildBatch(ctx, e.db, client.Id, Period{}, BuildOptions{DiscountPercent: d("150")})
	assert.True(t, errors.Is(err, ErrInvalidDiscount))

	tax := d("-5")
	_, err = e.builder.BuildBatch(ctx, e.db, client.Id, Period{}, BuildOptions{TaxRate: &tax})
	assert.True(t, errors.Is(err, ErrInvalidTaxRate))

	_, err = e.builder.BuildBatch(ctx, e.db, 9999, Period{}, BuildOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = e.builder.BuildBatch(ctx, e.db, client.Id, Period{}, BuildOptions{})
	assert.True(t, errors.Is(err, ErrNothingToBill))
}

func TestBuildSingle(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	ctx := context.Background()

	done := fixtures.Test(t, e.db, client.Id, models.TestReported, fixtures.Day(2025, time.March, 2), ref(models.ElementAnalyte, "GLU"))
	running := fixtures.Test(t, e.db, client.Id, models.TestInProgress, fixtures.Day(2025, time.March, 2), ref(models.ElementAnalyte, "GLU"))
	bare := fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 2))

	tax := decimal.Zero
	invoice, err := e.builder.BuildSingle(ctx, e.db, done.Id, BuildOptions{TaxRate: &tax})
	require.NoError(t, err)
	require.Len(t, invoice.Lines, 1)
	assert.Equal(t, "85.00", invoice.Total.StringFixed(2))
	assert.Nil(t, invoice.PeriodStart)

	_, err = e.builder.BuildSingle(ctx, e.db, done.Id, BuildOptions{})
	assert.True(t, errors.Is(err, ErrAlreadyBilled))

	_, err = e.builder.BuildSingle(ctx, e.db, running.Id, BuildOptions{})
	assert.True(t, errors.Is(err, ErrTestNotCompleted))

	_, err = e.builder.BuildSingle(ctx, e.db, bare.Id, BuildOptions{})
	assert.True(t, errors.Is(err, ErrNoBillableElements))

	_, err = e.builder.BuildSingle(ctx, e.db, 424242, BuildOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBuildSingle_ConcurrentCallsBillOnce(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	test := fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 2), ref(models.ElementAnalyte, "GLU"))

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.builder.BuildSingle(context.Background(), e.db, test.Id, BuildOptions{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrAlreadyBilled), "unexpected error: %v", err)
		assert.True(t, IsRetryable(err))
	}
	assert.Equal(t, 1, succeeded)

	var lines int64
	require.NoError(t, e.db.Model(&models.InvoiceLine{}).Where("test_record_id = ?", test.Id).Count(&lines).Error)
	assert.Equal(t, int64(1), lines)
}

func TestBuild_NumbersPerYear(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	ctx := context.Background()

	now := time.Date(2024, time.December, 31, 23, 0, 0, 0, time.UTC)
	e.builder.WithClock(func() time.Time { return now })

	var numbers []string
	for _, at := range []time.Time{now, now, now.Add(2 * time.Hour), now.Add(3 * time.Hour)} {
		now = at
		test := fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2024, time.December, 1), ref(models.ElementAnalyte, "GLU"))
		invoice, err := e.builder.BuildSingle(ctx, e.db, test.Id, BuildOptions{})
		require.NoError(t, err)
		numbers = append(numbers, invoice.Number)
	}

	assert.Equal(t, []string{"2024-0001", "2024-0002", "2025-0001", "2025-0002"}, numbers)
}
