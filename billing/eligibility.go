package billing

import (
	"context"
	"time"

	"labbilling-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Period bounds the completion date of the tests to bill. Either side may
// be open; both sides are inclusive calendar days.
type Period struct {
	Start *time.Time
	End   *time.Time
}

// Validate rejects a period whose start falls after its end.
func (p Period) Validate() error {
	if p.Start != nil && p.End != nil && dayStart(*p.Start).After(dayStart(*p.End)) {
		return NewError(ErrInvalidPeriod, "%s > %s", p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly))
	}
	return nil
}

// bounds converts the inclusive day range into a half-open instant range.
func (p Period) bounds() (from, until *time.Time) {
	if p.Start != nil {
		s := dayStart(*p.Start)
		from = &s
	}
	if p.End != nil {
		e := dayStart(*p.End).AddDate(0, 0, 1)
		until = &e
	}
	return from, until
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EligibilitySelector lists the test records a client can be billed for.
type EligibilitySelector struct{}

func NewEligibilitySelector() *EligibilitySelector {
	return &EligibilitySelector{}
}

// Select returns the reported or signed, unbilled tests of client, completed
// within period, ordered by request date then id. An empty result is not an
// error.
func (s *EligibilitySelector) Select(ctx context.Context, db *gorm.DB, clientID uint, period Period) ([]models.TestRecord, error) {
	return s.query(ctx, db, clientID, period, false)
}

// selectForUpdate is Select with the candidate rows locked for the rest of
// the enclosing transaction.
func (s *EligibilitySelector) selectForUpdate(ctx context.Context, tx *gorm.DB, clientID uint, period Period) ([]models.TestRecord, error) {
	return s.query(ctx, tx, clientID, period, true)
}

func (s *EligibilitySelector) query(ctx context.Context, db *gorm.DB, clientID uint, period Period, lock bool) ([]models.TestRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	q := db.WithContext(ctx).
		Where("client_id = ? AND billed = ? AND status IN ?", clientID, false, models.CompletedTestStatuses)

	from, until := period.bounds()
	if from != nil {
		q = q.Where("completed_at >= ?", *from)
	}
	if until != nil {
		q = q.Where("completed_at < ?", *until)
	}
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var tests []models.TestRecord
	if err := q.Order("requested_at ASC").Order("id ASC").Find(&tests).Error; err != nil {
		if lock {
			return nil, testRowError(err, "lock eligible tests")
		}
		return nil, StoreError(err, "select eligible tests")
	}
	return tests, nil
}
