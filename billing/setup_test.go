package billing

import (
	"testing"
	"time"

	"labbilling-backend/fixtures"
	"labbilling-backend/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var buildTime = time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)

type env struct {
	db       *gorm.DB
	catalog  *GormCatalog
	resolver *PriceResolver
	selector *EligibilitySelector
	counters *Counters
	builder  *InvoiceBuilder
	states   *InvoiceStateMachine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := fixtures.NewTestDB(t)
	catalog := NewCatalog()
	resolver := NewPriceResolver(catalog)
	selector := NewEligibilitySelector()
	counters := NewCounters()
	builder := NewInvoiceBuilder(BuilderConfig{IssuerCode: fixtures.IssuerCode, TaxRate: d("22")},
		catalog, resolver, selector, counters, zap.NewNop()).
		WithClock(func() time.Time { return buildTime })
	states := NewInvoiceStateMachine(true, zap.NewNop()).
		WithClock(func() time.Time { return buildTime.Add(time.Hour) })

	return &env{db: db, catalog: catalog, resolver: resolver, selector: selector, counters: counters, builder: builder, states: states}
}

// seedCatalog creates the elements used across the billing tests.
func (e *env) seedCatalog(t *testing.T) {
	t.Helper()
	fixtures.Element(t, e.db, models.ElementPanel, "LIPID", "Lipid panel", "120.00")
	fixtures.Element(t, e.db, models.ElementAnalyte, "GLU", "Glucose", "85.00")
	fixtures.Element(t, e.db, models.ElementCategoryFee, "DRAW", "Sample draw", "40.00")
	fixtures.Element(t, e.db, models.ElementAnalyte, "HBA1C", "Glycated haemoglobin", "30.00")
}

func ref(kind models.ElementKind, id string) fixtures.Ref {
	return fixtures.Ref{Kind: kind, ID: id}
}
