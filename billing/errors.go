package billing

import (
	"errors"
	"fmt"

	"labbilling-backend/database"
)

// Kind classifies billing failures so callers can tell permanent
// input/state errors from retryable conflicts.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindNotFound
	KindState
	KindConsistency
	KindConcurrency
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindConsistency:
		return "consistency"
	case KindConcurrency:
		return "concurrency"
	default:
		return "internal"
	}
}

var (
	ErrInvalidDiscount    = errors.New("discount percentage must be within 0-100")
	ErrInvalidTaxRate     = errors.New("tax rate must be within 0-100")
	ErrInvalidPeriod      = errors.New("period start is after period end")
	ErrInvalidStatus      = errors.New("unknown invoice status")
	ErrNotFound           = errors.New("record not found")
	ErrTestNotCompleted   = errors.New("test record is not reported or signed")
	ErrNothingToBill      = errors.New("no eligible test records to bill")
	ErrInvalidTransition  = errors.New("invalid invoice status transition")
	ErrInvalidState       = errors.New("operation not allowed in the current invoice status")
	ErrElementNotFound    = errors.New("billable element not found")
	ErrPriceUnresolved    = errors.New("price could not be resolved")
	ErrNoBillableElements = errors.New("test record carries no billable elements")
	ErrConsistency        = errors.New("invoice aggregates are inconsistent")
	ErrAlreadyBilled      = errors.New("test record already billed")
	ErrCounterCollision   = errors.New("counter allocation collided with a concurrent writer")
	ErrConcurrentUpdate   = errors.New("record changed concurrently")
)

var sentinelKinds = map[error]Kind{
	ErrInvalidDiscount:    KindInput,
	ErrInvalidTaxRate:     KindInput,
	ErrInvalidPeriod:      KindInput,
	ErrInvalidStatus:      KindInput,
	ErrNotFound:           KindNotFound,
	ErrTestNotCompleted:   KindState,
	ErrNothingToBill:      KindState,
	ErrInvalidTransition:  KindState,
	ErrInvalidState:       KindState,
	ErrElementNotFound:    KindConsistency,
	ErrPriceUnresolved:    KindConsistency,
	ErrNoBillableElements: KindConsistency,
	ErrConsistency:        KindConsistency,
	ErrAlreadyBilled:      KindConcurrency,
	ErrCounterCollision:   KindConcurrency,
	ErrConcurrentUpdate:   KindConcurrency,
}

// Error wraps a sentinel with the detail of the failing call.
type Error struct {
	Kind   Kind
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the operation may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConcurrency
}

// NewError wraps sentinel with a formatted detail and the sentinel's kind.
func NewError(sentinel error, format string, args ...any) *Error {
	kind, ok := sentinelKinds[sentinel]
	if !ok {
		kind = KindInternal
	}
	return &Error{Kind: kind, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether err is a concurrency conflict that is safe to
// retry.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrency
}

// StoreError classifies an error returned by the store. Conflicts the store
// detected itself become retryable concurrency errors; everything else is
// passed through.
func StoreError(err error, op string) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	switch {
	case database.IsSerializationFailure(err):
		return &Error{Kind: KindConcurrency, Err: ErrConcurrentUpdate, Detail: fmt.Sprintf("%s: %v", op, err)}
	case database.IsDuplicateKey(err):
		return &Error{Kind: KindConcurrency, Err: ErrCounterCollision, Detail: fmt.Sprintf("%s: %v", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// testRowError classifies a store error raised while locking or flagging
// test records. A serialization failure there means a concurrent build took
// the rows first, so it is reported as ErrAlreadyBilled.
func testRowError(err error, op string) error {
	if err != nil && database.IsSerializationFailure(err) {
		return &Error{Kind: KindConcurrency, Err: ErrAlreadyBilled, Detail: fmt.Sprintf("%s: %v", op, err)}
	}
	return StoreError(err, op)
}
