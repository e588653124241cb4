package models

import "time"

// IdempotencyKey remembers the first completed response for a mutating
// request so that client retries (e.g. of a batch build) replay it instead
// of billing twice. Lives in the tenant schema.
type IdempotencyKey struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	Key            string     `json:"key" gorm:"size:128;uniqueIndex"`
	RequestHash    string     `json:"request_hash" gorm:"size:64"` // sha256 of method|path|body|schema|subject
	Method         string     `json:"method" gorm:"size:10"`
	Path           string     `json:"path" gorm:"size:255"`
	Subject        string     `json:"subject" gorm:"size:128"`
	ResponseStatus int        `json:"response_status"` // 0 while the first request is still running
	ContentType    string     `json:"content_type" gorm:"size:128"`
	ResponseBody   []byte     `json:"-" gorm:"type:bytea"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// Completed reports whether a response has been stored.
func (k *IdempotencyKey) Completed() bool {
	return k.ResponseStatus != 0
}
