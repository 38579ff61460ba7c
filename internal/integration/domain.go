// Package integration mirrors customers, invoices and payments into the
// tenant's Qoyod account and keeps an append-only log of every attempt.
package integration

import (
	"encoding/json"
	"time"
)

// RecordType identifies what a sync attempt or job is about.
type RecordType string

const (
	RecordCustomer   RecordType = "CUSTOMER"
	RecordProduct    RecordType = "PRODUCT"
	RecordInvoice    RecordType = "INVOICE"
	RecordPayment    RecordType = "PAYMENT"
	RecordCreditNote RecordType = "CREDIT_NOTE"
)

// ParseRecordType maps the URL segment form (customers, invoices, payments)
// or the stored form to a RecordType.
func ParseRecordType(raw string) (RecordType, bool) {
	switch raw {
	case "customers", string(RecordCustomer):
		return RecordCustomer, true
	case "invoices", string(RecordInvoice):
		return RecordInvoice, true
	case "payments", string(RecordPayment):
		return RecordPayment, true
	case "products", string(RecordProduct):
		return RecordProduct, true
	case "credit-notes", string(RecordCreditNote):
		return RecordCreditNote, true
	}
	return "", false
}

// SyncType distinguishes creating from updating the remote record.
type SyncType string

const (
	SyncCreate SyncType = "CREATE"
	SyncUpdate SyncType = "UPDATE"
)

// SyncStatus is the outcome of one attempt.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "SUCCESS"
	SyncFailure SyncStatus = "FAILURE"
)

// SyncLog is one row of the append-only accounting sync log.
type SyncLog struct {
	ID              int64           `json:"id"`
	OwnerID         int64           `json:"-"`
	SyncType        SyncType        `json:"sync_type"`
	RecordType      RecordType      `json:"record_type"`
	RecordID        int64           `json:"record_id"`
	Status          SyncStatus      `json:"status"`
	QoyodID         *string         `json:"qoyod_id,omitempty"`
	RequestPayload  json.RawMessage `json:"request_payload,omitempty"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// LogFilter narrows ListLogs.
type LogFilter struct {
	RecordType RecordType
	RecordID   int64
	Limit      int
}

// JobStatus is the state of an outbox job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobDispatched JobStatus = "DISPATCHED"
	JobDone       JobStatus = "DONE"
	JobFailed     JobStatus = "FAILED"
)

// Job is a queued request to mirror one record.
type Job struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	RecordType  RecordType `json:"record_type"`
	RecordID    int64      `json:"record_id"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	AvailableAt time.Time  `json:"available_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
