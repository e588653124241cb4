package billing

import (
	"context"
	"strings"
	"time"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BuildOptions are the per-invoice pricing parameters.
type BuildOptions struct {
	DiscountPercent decimal.Decimal
	// TaxRate overrides the configured default when set.
	TaxRate *decimal.Decimal
}

// BuilderConfig carries the issuer identity and fiscal defaults.
type BuilderConfig struct {
	IssuerCode string
	TaxRate    decimal.Decimal
}

// InvoiceBuilder turns eligible test records into draft invoices. Every
// build runs in one transaction: eligibility re-check, pricing, numbering
// and the billed flags commit together or not at all.
type InvoiceBuilder struct {
	cfg      BuilderConfig
	catalog  PriceCatalog
	resolver *PriceResolver
	selector *EligibilitySelector
	counters *Counters
	history  *historyRecorder
	log      *zap.Logger
	now      func() time.Time
}

func NewInvoiceBuilder(cfg BuilderConfig, catalog PriceCatalog, resolver *PriceResolver, selector *EligibilitySelector, counters *Counters, log *zap.Logger) *InvoiceBuilder {
	return &InvoiceBuilder{
		cfg:      cfg,
		catalog:  catalog,
		resolver: resolver,
		selector: selector,
		counters: counters,
		history:  &historyRecorder{},
		log:      log.Named("builder"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for numbering and timestamps.
func (b *InvoiceBuilder) WithClock(now func() time.Time) *InvoiceBuilder {
	b.now = now
	return b
}

func (b *InvoiceBuilder) taxRate(opts BuildOptions) decimal.Decimal {
	if opts.TaxRate != nil {
		return *opts.TaxRate
	}
	return b.cfg.TaxRate
}

// BuildSingle bills one test record on its own invoice.
func (b *InvoiceBuilder) BuildSingle(ctx context.Context, db *gorm.DB, testID uint, opts BuildOptions) (*models.Invoice, error) {
	if err := ValidatePercent(opts.DiscountPercent, b.taxRate(opts)); err != nil {
		return nil, err
	}

	var invoice *models.Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var test models.TestRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&test, testID).Error
		if err != nil {
			if database.IsNotFound(err) {
				return NewError(ErrNotFound, "test record %d", testID)
			}
			return testRowError(err, "lock test record")
		}
		if test.Billed {
			return NewError(ErrAlreadyBilled, "test record %d", testID)
		}
		if !test.Status.Completed() {
			return NewError(ErrTestNotCompleted, "test record %d is %s", testID, test.Status)
		}

		client, err := loadClient(ctx, tx, test.ClientID)
		if err != nil {
			return err
		}

		invoice, err = b.build(ctx, tx, client, []models.TestRecord{test}, opts, Period{})
		return err
	}, database.TxOptions(db)...)
	if err != nil {
		b.logFailure("single", err, zap.Uint("test_id", testID))
		return nil, err
	}
	return invoice, nil
}

// BuildBatch bills every eligible test of client completed within period on
// one invoice. Repeating the call finds nothing left to bill.
func (b *InvoiceBuilder) BuildBatch(ctx context.Context, db *gorm.DB, clientID uint, period Period, opts BuildOptions) (*models.Invoice, error) {
	if err := ValidatePercent(opts.DiscountPercent, b.taxRate(opts)); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var invoice *models.Invoice
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := loadClient(ctx, tx, clientID)
		if err != nil {
			return err
		}

		tests, err := b.selector.selectForUpdate(ctx, tx, clientID, period)
		if err != nil {
			return err
		}
		if len(tests) == 0 {
			return NewError(ErrNothingToBill, "client %d", clientID)
		}

		invoice, err = b.build(ctx, tx, client, tests, opts, period)
		return err
	}, database.TxOptions(db)...)
	if err != nil {
		b.logFailure("batch", err, zap.Uint("client_id", clientID))
		return nil, err
	}
	return invoice, nil
}

func (b *InvoiceBuilder) build(ctx context.Context, tx *gorm.DB, client *models.Client, tests []models.TestRecord, opts BuildOptions, period Period) (*models.Invoice, error) {
	ids := make([]uint, len(tests))
	for i, t := range tests {
		ids[i] = t.Id
	}

	var carried []models.TestRecordElement
	if err := tx.WithContext(ctx).Where("test_record_id IN ?", ids).Order("id ASC").Find(&carried).Error; err != nil {
		return nil, StoreError(err, "load test elements")
	}
	byTest := make(map[uint][]models.TestRecordElement, len(tests))
	for _, e := range carried {
		byTest[e.TestRecordID] = append(byTest[e.TestRecordID], e)
	}

	lines := make([]models.InvoiceLine, 0, len(tests))
	amounts := make([]decimal.Decimal, 0, len(tests))
	for i, test := range tests {
		elements := byTest[test.Id]
		if len(elements) == 0 {
			return nil, NewError(ErrNoBillableElements, "test record %d", test.Id)
		}

		amount := decimal.Zero
		names := make([]string, 0, len(elements))
		for _, e := range elements {
			element, err := b.catalog.Element(ctx, tx, e.ElementKind, e.ElementID)
			if err != nil {
				return nil, err
			}
			price, err := b.resolver.Resolve(ctx, tx, client, e.ElementKind, e.ElementID)
			if err != nil {
				return nil, err
			}
			amount = amount.Add(price)
			names = append(names, element.Name)
		}

		lines = append(lines, models.InvoiceLine{
			Position:     i + 1,
			TestRecordID: test.Id,
			Description:  lineDescription(test, names),
			UnitPrice:    amount,
			Discount:     decimal.Zero,
			Amount:       amount,
		})
		amounts = append(amounts, amount)
	}

	totals, err := ComputeTotals(amounts, opts.DiscountPercent, b.taxRate(opts))
	if err != nil {
		return nil, err
	}

	now := b.now()
	seq, err := b.counters.NextInvoiceNumber(ctx, tx, b.cfg.IssuerCode, now.Year())
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		IssuerCode:      b.cfg.IssuerCode,
		Number:          FormatInvoiceNumber(now.Year(), seq),
		Year:            now.Year(),
		Sequence:        seq,
		ClientID:        client.Id,
		Subtotal:        totals.Subtotal,
		DiscountPercent: totals.DiscountPercent,
		DiscountTotal:   totals.Discount,
		TaxRate:         totals.TaxRate,
		TaxTotal:        totals.Tax,
		Total:           totals.Total,
		PeriodStart:     period.Start,
		PeriodEnd:       period.End,
		Status:          models.InvoiceDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	db := tx.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(invoice).Error; err != nil {
		return nil, StoreError(err, "create invoice")
	}
	for i := range lines {
		lines[i].InvoiceID = invoice.ID
	}
	if err := db.Create(&lines).Error; err != nil {
		return nil, StoreError(err, "create invoice lines")
	}

	res := db.Model(&models.TestRecord{}).
		Where("id IN ? AND billed = ?", ids, false).
		UpdateColumns(map[string]any{"billed": true, "invoice_id": invoice.ID})
	if res.Error != nil {
		return nil, testRowError(res.Error, "mark tests billed")
	}
	if res.RowsAffected != int64(len(ids)) {
		return nil, NewError(ErrAlreadyBilled, "%d of %d test records were taken by a concurrent build", int64(len(ids))-res.RowsAffected, len(ids))
	}

	invoice.Lines = lines
	invoice.Client = *client
	if err := b.history.record(ctx, tx, invoice, ""); err != nil {
		return nil, err
	}

	b.log.Info("invoice built",
		zap.Uint("invoice_id", invoice.ID),
		zap.String("number", invoice.Number),
		zap.Uint("client_id", client.Id),
		zap.Int("lines", len(lines)),
		zap.String("total", invoice.Total.StringFixed(2)))
	return invoice, nil
}

func (b *InvoiceBuilder) logFailure(mode string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("mode", mode), zap.String("kind", KindOf(err).String()), zap.Error(err))
	if IsRetryable(err) {
		b.log.Warn("invoice build lost a concurrent race", fields...)
		return
	}
	b.log.Debug("invoice build rejected", fields...)
}

func lineDescription(test models.TestRecord, elementNames []string) string {
	desc := strings.TrimSpace(test.Description)
	if desc == "" {
		desc = strings.Join(elementNames, ", ")
	}
	if test.Accession != "" {
		desc = test.Accession + " " + desc
	}
	return desc
}

func loadClient(ctx context.Context, tx *gorm.DB, clientID uint) (*models.Client, error) {
	var client models.Client
	if err := tx.WithContext(ctx).Take(&client, clientID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, NewError(ErrNotFound, "client %d", clientID)
		}
		return nil, StoreError(err, "load client")
	}
	return &client, nil
}
