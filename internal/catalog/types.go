// Package catalog defines the domain types shared across the import
// pipeline, the stores, and the HTTP layer.
package catalog

import "time"

// Product is a single catalog record. SKU is unique when compared
// case-insensitively; the stored casing is whatever the record was first
// created with and is never rewritten by an update.
type Product struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobStatus is the lifecycle state of an import job.
// Transitions are monotonic: pending -> processing -> {completed, failed}.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// RowError describes a single failed row in an import. Row is the 1-based
// line number in the source file (the header is line 1, so the first data
// row is 2). Batch-level failures use Row 0 since they have no single row.
type RowError struct {
	Row     int    `json:"row_number"`
	Message string `json:"message"`
}

// ImportJob is the durable progress record for one import.
type ImportJob struct {
	ID            int64      `json:"id"`
	TaskID        string     `json:"task_id"`
	Status        JobStatus  `json:"status"`
	Progress      float64    `json:"progress"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	Errors        []RowError `json:"errors"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Webhook is a notification subscriber. Deliveries are attempted only when
// Enabled is true and the firing event type appears in EventTypes.
type Webhook struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"event_types"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SubscribesTo reports whether the webhook should receive eventType.
func (w Webhook) SubscribesTo(eventType string) bool {
	if !w.Enabled {
		return false
	}
	for _, et := range w.EventTypes {
		if et == eventType {
			return true
		}
	}
	return false
}

// Event types fired through the notification fan-out.
const (
	EventImportCompleted    = "import.completed"
	EventProductCreated     = "product.created"
	EventProductUpdated     = "product.updated"
	EventProductDeleted     = "product.deleted"
	EventProductBulkDeleted = "product.bulk_deleted"
	EventWebhookTest        = "webhook.test"
)
