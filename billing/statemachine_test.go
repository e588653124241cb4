package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"labbilling-backend/fixtures"
	"labbilling-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var allStatuses = []models.InvoiceStatus{
	models.InvoiceDraft, models.InvoiceIssued, models.InvoiceSent, models.InvoicePaid, models.InvoiceCancelled,
}

func TestCanTransition_Table(t *testing.T) {
	allowed := map[[2]models.InvoiceStatus]bool{
		{models.InvoiceDraft, models.InvoiceIssued}:     true,
		{models.InvoiceDraft, models.InvoiceCancelled}:  true,
		{models.InvoiceIssued, models.InvoiceSent}:      true,
		{models.InvoiceIssued, models.InvoicePaid}:      true,
		{models.InvoiceIssued, models.InvoiceCancelled}: true,
		{models.InvoiceSent, models.InvoicePaid}:        true,
		{models.InvoiceSent, models.InvoiceCancelled}:   true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, allowed[[2]models.InvoiceStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.Empty(t, PermittedTransitions(models.InvoicePaid))
	assert.Empty(t, PermittedTransitions(models.InvoiceCancelled))
}

// draftInvoice builds a one-line draft for a fresh client.
func draftInvoice(t *testing.T, e *env) *models.Invoice {
	t.Helper()
	e.seedCatalog(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	fixtures.Test(t, e.db, client.Id, models.TestSigned, fixtures.Day(2025, time.March, 2), ref(models.ElementAnalyte, "GLU"))
	invoice, err := e.builder.BuildBatch(context.Background(), e.db, client.Id, Period{}, BuildOptions{})
	require.NoError(t, err)
	return invoice
}

func TestTransition_LifecycleToPaid(t *testing.T) {
	e := newEnv(t)
	invoice := draftInvoice(t, e)
	ctx := context.Background()

	issued, err := e.states.Transition(ctx, e.db, invoice.ID, models.InvoiceIssued)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)
	assert.Len(t, issued.Lines, 1)

	sent, err := e.states.Transition(ctx, e.db, invoice.ID, models.InvoiceSent)
	require.NoError(t, err)
	require.NotNil(t, sent.SentAt)

	paidAt := time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC)
	paid, err := e.states.Transition(ctx, e.db, invoice.ID, models.InvoicePaid,
		WithPayment(Payment{Method: "bank_transfer", Reference: "CRO-1", PaidAt: &paidAt}))
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)
	assert.True(t, paidAt.Equal(*paid.PaidAt))

	var payments []models.Payment
	require.NoError(t, e.db.Where("invoice_id = ?", invoice.ID).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, invoice.Total.StringFixed(2), payments[0].Amount.StringFixed(2))
	assert.Equal(t, "CRO-1", payments[0].Reference)

	_, err = e.states.Transition(ctx, e.db, invoice.ID, models.InvoiceCancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var history []models.InvoiceStatusChange
	require.NoError(t, e.db.Where("invoice_id = ?", invoice.ID).Order("id ASC").Find(&history).Error)
	require.Len(t, history, 4)
	assert.Equal(t, models.InvoiceSent, history[3].FromStatus)
	assert.Equal(t, models.InvoicePaid, history[3].ToStatus)

	var snapshot models.Invoice
	require.NoError(t, json.Unmarshal(history[3].Snapshot, &snapshot))
	assert.Equal(t, models.InvoicePaid, snapshot.Status)
	assert.Equal(t, invoice.Number, snapshot.Number)
}

func TestTransition_RejectedLeavesInvoiceUntouched(t *testing.T) {
	e := newEnv(t)
	invoice := draftInvoice(t, e)
	ctx := context.Background()

	for _, to := range []models.InvoiceStatus{models.InvoiceSent, models.InvoicePaid, models.InvoiceDraft} {
		_, err := e.states.Transition(ctx, e.db, invoice.ID, to)
		assert.True(t, errors.Is(err, ErrInvalidTransition), "draft -> %s", to)
		assert.Equal(t, KindState, KindOf(err))
	}

	_, err := e.states.Transition(ctx, e.db, invoice.ID, models.InvoiceStatus("void"))
	assert.True(t, errors.Is(err, ErrInvalidStatus))

	_, err = e.states.Transition(ctx, e.db, 9999, models.InvoiceIssued)
	assert.True(t, errors.Is(err, ErrNotFound))

	var stored models.Invoice
	require.NoError(t, e.db.Take(&stored, invoice.ID).Error)
	assert.Equal(t, models.InvoiceDraft, stored.Status)
	assert.Nil(t, stored.IssuedAt)
}

func TestTransition_CancelReleasesTests(t *testing.T) {
	e := newEnv(t)
	invoice := draftInvoice(t, e)
	ctx := context.Background()

	_, err := e.states.Transition(ctx, e.db, invoice.ID, models.InvoiceIssued)
	require.NoError(t, err)
	cancelled, err := e.states.Transition(ctx, e.db, invoice.ID, models.InvoiceCancelled)
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)

	var test models.TestRecord
	require.NoError(t, e.db.Take(&test, invoice.Lines[0].TestRecordID).Error)
	assert.False(t, test.Billed)
	assert.Nil(t, test.InvoiceID)

	// The released test can be billed again on a new invoice.
	rebilled, err := e.builder.BuildBatch(ctx, e.db, invoice.ClientID, Period{}, BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, "2025-0002", rebilled.Number)
}

func TestTransition_CancelKeepsTestsWhenConfigured(t *testing.T) {
	e := newEnv(t)
	e.states = NewInvoiceStateMachine(false, zap.NewNop())
	invoice := draftInvoice(t, e)

	_, err := e.states.Transition(context.Background(), e.db, invoice.ID, models.InvoiceCancelled)
	require.NoError(t, err)

	var test models.TestRecord
	require.NoError(t, e.db.Take(&test, invoice.Lines[0].TestRecordID).Error)
	assert.True(t, test.Billed)
	require.NotNil(t, test.InvoiceID)
	assert.Equal(t, invoice.ID, *test.InvoiceID)
}

func TestTransition_IssueRequiresLines(t *testing.T) {
	e := newEnv(t)
	client := fixtures.Client(t, e.db, "Clinica Nord")
	empty := models.Invoice{
		IssuerCode: fixtures.IssuerCode,
		Number:     "2025-0099",
		Year:       2025,
		Sequence:   99,
		ClientID:   client.Id,
		Status:     models.InvoiceDraft,
	}
	require.NoError(t, e.db.Omit("Client", "Lines").Create(&empty).Error)

	_, err := e.states.Transition(context.Background(), e.db, empty.ID, models.InvoiceIssued)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}
