package outbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"labbilling-backend/einvoice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	keys    []string
	err     error
	release chan struct{}
}

func (f *fakeStore) Store(ctx context.Context, schema string, doc *einvoice.Document) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	key := ObjectKey(schema, doc)
	f.keys = append(f.keys, key)
	return key, nil
}

type fakePublisher struct {
	msgs []TransmissionMessage
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg TransmissionMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func testDocument() *einvoice.Document {
	return &einvoice.Document{
		InvoiceID:   7,
		Number:      "2025-0003",
		Progressive: 12,
		FileName:    "IT01234567890_00012.xml",
		Digest:      "abc",
		XML:         []byte("<x/>"),
	}
}

func TestDispatch_ArchivesThenPublishes(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	ok := d.Dispatch(context.Background(), "tenant_a", testDocument())
	require.True(t, ok)

	require.Equal(t, []string{"tenant_a/2025/IT01234567890_00012.xml"}, store.keys)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "tenant_a", pub.msgs[0].Schema)
	assert.Equal(t, int64(12), pub.msgs[0].Progressive)
	assert.Equal(t, store.keys[0], pub.msgs[0].ObjectKey)
}

func TestDispatch_DisabledSinks(t *testing.T) {
	d := NewDispatcher(nil, nil, zap.NewNop())
	assert.True(t, d.Dispatch(context.Background(), "tenant_a", testDocument()))
}

func TestDispatch_ArchiveFailureStillPublishes(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(&fakeStore{err: errors.New("bucket unavailable")}, pub, zap.NewNop())

	ok := d.Dispatch(context.Background(), "tenant_a", testDocument())
	assert.False(t, ok)
	require.Len(t, pub.msgs, 1)
	assert.Empty(t, pub.msgs[0].ObjectKey)
}

func TestGo_RunsDetachedFromRequest(t *testing.T) {
	store := &fakeStore{release: make(chan struct{})}
	pub := &fakePublisher{}
	d := NewDispatcher(store, pub, zap.NewNop())

	reqCtx, cancel := context.WithCancel(context.Background())
	d.Go(reqCtx, "tenant_a", testDocument())
	cancel()

	short, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	assert.ErrorIs(t, d.Wait(short), context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, []string{"tenant_a/2025/IT01234567890_00012.xml"}, store.keys)
	require.Len(t, pub.msgs, 1)
}
