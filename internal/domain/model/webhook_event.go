package model

import (
	"database/sql/driver"
	"time"
)

// WebhookStatus represents the processing status of a webhook event.
// completed and unrecoverable are resting states. processing and failed are
// not: a row left in either (a crash mid-handling, a handler error) is
// reclaimed and reprocessed on the next provider redelivery.
type WebhookStatus string

const (
	WebhookStatusProcessing    WebhookStatus = "processing"
	WebhookStatusCompleted     WebhookStatus = "completed"
	WebhookStatusFailed        WebhookStatus = "failed"
	WebhookStatusUnrecoverable WebhookStatus = "unrecoverable"
)

// Scan implements sql.Scanner interface
func (w *WebhookStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*w = WebhookStatus(v)
	case []byte:
		*w = WebhookStatus(v)
	default:
		*w = WebhookStatusProcessing
	}
	return nil
}

// Value implements driver.Valuer interface
func (w WebhookStatus) Value() (driver.Value, error) {
	return string(w), nil
}

// IsTerminal reports whether the status is a resting state. Failed is not
// terminal: a failed row is retried when the provider redelivers.
func (w WebhookStatus) IsTerminal() bool {
	switch w {
	case WebhookStatusCompleted, WebhookStatusUnrecoverable:
		return true
	default:
		return false
	}
}

// WebhookEvent is the idempotency ledger for Stripe deliveries. The unique
// stripe_event_id column is the concurrency-control primitive: the first
// insert wins the claim, concurrent deliveries observe the conflict and
// skip reprocessing.
type WebhookEvent struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	StripeEventID      string        `gorm:"unique;not null;size:255;index" json:"stripe_event_id"`
	EventType          string        `gorm:"not null;size:100;index" json:"event_type"`
	Status             WebhookStatus `gorm:"type:webhook_status;default:'processing';index" json:"status"`
	Payload            JSONB         `gorm:"type:jsonb;not null" json:"payload"`
	ErrorMessage       *string       `json:"error_message,omitempty"`
	ProcessingAttempts int           `gorm:"not null;default:0" json:"processing_attempts"`
	ProcessedAt        *time.Time    `json:"processed_at,omitempty"`
	CreatedAt          time.Time     `gorm:"default:now()" json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	StripeCreatedAt    *time.Time    `json:"stripe_created_at,omitempty"`
}

// TableName specifies the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}
