package billing

import (
	"context"
	"errors"
	"testing"

	"labbilling-backend/fixtures"
	"labbilling-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DefaultPrice(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")

	price, err := e.resolver.Resolve(context.Background(), e.db, &client, models.ElementAnalyte, "GLU")
	require.NoError(t, err)
	assert.Equal(t, "85.00", price.StringFixed(2))
}

func TestResolve_PriceListOverridesDefault(t *testing.T) {
	e := newEnv(t)
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.PriceList(t, e.db, &client, map[string]string{"analyte/GLU": "70.00"})
	ctx := context.Background()

	price, err := e.resolver.Resolve(ctx, e.db, &client, models.ElementAnalyte, "GLU")
	require.NoError(t, err)
	assert.Equal(t, "70.00", price.StringFixed(2))

	// Elements missing from the list fall back to the catalog.
	price, err = e.resolver.Resolve(ctx, e.db, &client, models.ElementPanel, "LIPID")
	require.NoError(t, err)
	assert.Equal(t, "120.00", price.StringFixed(2))
}

func TestResolve_ListEntryWithoutCatalogElement(t *testing.T) {
	e := newEnv(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.PriceList(t, e.db, &client, map[string]string{"category_fee/HOME": "15.00"})

	price, err := e.resolver.Resolve(context.Background(), e.db, &client, models.ElementCategoryFee, "HOME")
	require.NoError(t, err)
	assert.Equal(t, "15.00", price.StringFixed(2))
}

func TestResolve_Unresolved(t *testing.T) {
	e := newEnv(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")

	_, err := e.resolver.Resolve(context.Background(), e.db, &client, models.ElementAnalyte, "NOPE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPriceUnresolved))
	assert.Equal(t, KindConsistency, KindOf(err))
}

func TestCatalog_UnknownKind(t *testing.T) {
	e := newEnv(t)

	_, err := e.catalog.Element(context.Background(), e.db, models.ElementKind("reagent"), "X")
	assert.True(t, errors.Is(err, ErrElementNotFound))
}
