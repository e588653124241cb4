// Package fixtures seeds SQLite-backed stores for tests.
package fixtures

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"labbilling-backend/database"
	"labbilling-backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const IssuerCode = "LAB01"

var accessions atomic.Int64

// NewTestDB opens a migrated SQLite database private to t. A single
// connection serializes transactions the way row locks would.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "lab.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func Issuer(t *testing.T, db *gorm.DB) models.Issuer {
	t.Helper()
	issuer := models.Issuer{
		Code:        IssuerCode,
		CompanyName: "Laboratorio Analisi Srl",
		VATNumber:   "01234567890",
		FiscalCode:  "01234567890",
		TaxRegime:   "RF01",
		Address:     "Via Roma 1",
		City:        "Milano",
		Zip:         "20100",
		Province:    "MI",
		Country:     "IT",
	}
	require.NoError(t, db.Create(&issuer).Error)
	return issuer
}

// Client seeds a client; mutate adjusts it before insert.
func Client(t *testing.T, db *gorm.DB, name string, mutate ...func(*models.Client)) models.Client {
	t.Helper()
	client := models.Client{
		CompanyName: name,
		Address:     "Via Verdi 10",
		City:        "Torino",
		Country:     "IT",
		Zip:         "10100",
		Province:    "TO",
		VATNumber:   "09876543210",
		RoutingCode: "ABC1234",
		Active:      true,
	}
	for _, m := range mutate {
		m(&client)
	}
	require.NoError(t, db.Omit(clause.Associations).Create(&client).Error)
	return client
}

func Element(t *testing.T, db *gorm.DB, kind models.ElementKind, id, name, price string) models.BillableElement {
	t.Helper()
	element := models.BillableElement{
		Kind:         kind,
		Id:           id,
		Name:         name,
		DefaultPrice: Money(price),
		Active:       true,
	}
	require.NoError(t, db.Create(&element).Error)
	return element
}

// PriceList attaches a new list with the given "kind/id" => price entries
// to client.
func PriceList(t *testing.T, db *gorm.DB, client *models.Client, prices map[string]string) models.PriceList {
	t.Helper()
	list := models.PriceList{Name: fmt.Sprintf("%s list", client.CompanyName)}
	require.NoError(t, db.Omit(clause.Associations).Create(&list).Error)

	for key, price := range prices {
		kind, id, _ := strings.Cut(key, "/")
		entry := models.PriceListEntry{
			PriceListID: list.Id,
			ElementKind: models.ElementKind(kind),
			ElementID:   id,
			Price:       Money(price),
		}
		require.NoError(t, db.Create(&entry).Error)
	}

	require.NoError(t, db.Model(&models.Client{}).Where("id = ?", client.Id).
		UpdateColumn("price_list_id", list.Id).Error)
	client.PriceListID = &list.Id
	return list
}

// Ref names a billable element carried by a test.
type Ref struct {
	Kind models.ElementKind
	ID   string
}

// Test seeds a test record of client. completedAt is ignored for statuses
// that are not completed.
func Test(t *testing.T, db *gorm.DB, clientID uint, status models.TestStatus, completedAt time.Time, refs ...Ref) models.TestRecord {
	t.Helper()
	test := models.TestRecord{
		ClientID:    clientID,
		Accession:   fmt.Sprintf("ACC-%04d", accessions.Add(1)),
		Status:      status,
		RequestedAt: completedAt.Add(-24 * time.Hour),
	}
	if status.Completed() {
		at := completedAt
		test.CompletedAt = &at
	}
	require.NoError(t, db.Omit(clause.Associations).Create(&test).Error)

	for _, ref := range refs {
		element := models.TestRecordElement{TestRecordID: test.Id, ElementKind: ref.Kind, ElementID: ref.ID}
		require.NoError(t, db.Create(&element).Error)
		test.Elements = append(test.Elements, element)
	}
	return test
}
