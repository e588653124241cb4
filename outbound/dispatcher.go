package outbound

import (
	"context"
	"sync"
	"time"

	"labbilling-backend/einvoice"

	"go.uber.org/zap"
)

// DocumentStore keeps a copy of an exported document.
type DocumentStore interface {
	Store(ctx context.Context, schema string, doc *einvoice.Document) (string, error)
}

// MessagePublisher announces an exported document.
type MessagePublisher interface {
	Publish(ctx context.Context, msg TransmissionMessage) error
}

// Dispatcher hands committed documents to the archive and the delivery
// queue. Either may be nil when disabled. The transmission row is the
// record of truth, so dispatch failures are logged and never undo an
// export.
type Dispatcher struct {
	store     DocumentStore
	publisher MessagePublisher
	log       *zap.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

const defaultDispatchTimeout = 30 * time.Second

func NewDispatcher(store DocumentStore, publisher MessagePublisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, publisher: publisher, log: log.Named("outbound"), timeout: defaultDispatchTimeout}
}

// Go dispatches doc in the background. The work keeps the values of ctx but
// not its cancellation, so it outlives the request that exported doc.
func (d *Dispatcher) Go(ctx context.Context, schema string, doc *einvoice.Document) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		d.Dispatch(ctx, schema, doc)
	}()
}

// Wait blocks until background dispatches finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch archives then announces doc. It reports whether every enabled
// sink accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, schema string, doc *einvoice.Document) bool {
	fields := []zap.Field{
		zap.String("schema", schema),
		zap.String("number", doc.Number),
		zap.Int64("progressive", doc.Progressive),
	}

	ok := true
	var key string
	if d.store != nil {
		var err error
		key, err = d.store.Store(ctx, schema, doc)
		if err != nil {
			d.log.Error("document archive failed", append(fields, zap.Error(err))...)
			ok = false
		}
	}

	if d.publisher != nil {
		msg := TransmissionMessage{
			Schema:      schema,
			InvoiceID:   doc.InvoiceID,
			Number:      doc.Number,
			Progressive: doc.Progressive,
			FileName:    doc.FileName,
			Digest:      doc.Digest,
			ObjectKey:   key,
		}
		if err := d.publisher.Publish(ctx, msg); err != nil {
			d.log.Error("transmission publish failed", append(fields, zap.Error(err))...)
			ok = false
		}
	}

	if ok {
		d.log.Info("document dispatched", append(fields, zap.String("object_key", key))...)
	}
	return ok
}
