package models

import "time"

// TestStatus is the lab-workflow status of a test record. The billing core
// only reads it.
type TestStatus string

const (
	TestRequested  TestStatus = "requested"
	TestInProgress TestStatus = "in_progress"
	TestExecuted   TestStatus = "executed"
	TestReported   TestStatus = "reported"
	TestSigned     TestStatus = "signed"
	TestCancelled  TestStatus = "cancelled"
)

// CompletedTestStatuses are the statuses a test must be in to be billed.
var CompletedTestStatuses = []TestStatus{TestReported, TestSigned}

// Completed reports whether the test has reached a billable status.
func (s TestStatus) Completed() bool {
	return s == TestReported || s == TestSigned
}

// TestRecord is a diagnostic test performed for a client. Billed is true
// exactly when InvoiceID points at a non-cancelled invoice.
type TestRecord struct {
	Id          uint                `json:"id" gorm:"primaryKey"`
	ClientID    uint                `json:"client_id" gorm:"not null;index:idx_test_records_client_eligible,priority:1"`
	Client      Client              `json:"-" gorm:"foreignKey:ClientID;references:Id"`
	Accession   string              `json:"accession" gorm:"size:64;index"`
	Description string              `json:"description"`
	Status      TestStatus          `json:"status" gorm:"size:20;not null;index:idx_test_records_client_eligible,priority:3"`
	Billed      bool                `json:"billed" gorm:"not null;default:false;index:idx_test_records_client_eligible,priority:2"`
	InvoiceID   *uint               `json:"invoice_id" gorm:"index"`
	RequestedAt time.Time           `json:"requested_at" gorm:"not null"`
	CompletedAt *time.Time          `json:"completed_at"`
	Elements    []TestRecordElement `json:"elements" gorm:"foreignKey:TestRecordID;constraint:OnDelete:CASCADE"`
}

// TestRecordElement is one billable element carried by a test, e.g. a panel
// plus add-on analytes.
type TestRecordElement struct {
	Id           uint        `json:"id" gorm:"primaryKey"`
	TestRecordID uint        `json:"-" gorm:"not null;index"`
	ElementKind  ElementKind `json:"element_kind" gorm:"size:20;not null"`
	ElementID    string      `json:"element_id" gorm:"size:64;not null"`
}
