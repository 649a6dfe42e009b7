package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
)

// WebhookEventRepository is the durable idempotency ledger for Stripe
// events.
type WebhookEventRepository interface {
	// InsertIfAbsent attempts to claim the event id with an atomic insert
	// (ON CONFLICT DO NOTHING). It returns claimed=true when this call won
	// the insert; otherwise the stored row (owned by an earlier or
	// concurrent delivery) is returned. Losing the race is not an error.
	InsertIfAbsent(ctx context.Context, eventID, eventType string, payload json.RawMessage, stripeCreatedAt *time.Time) (claimed bool, existing *model.WebhookEvent, err error)

	// ReclaimEvent atomically takes over an event stuck outside a resting
	// state: failed rows immediately, processing rows only when their last
	// write is older than staleBefore (a fresh processing row belongs to an
	// in-flight delivery). Returns true when this call won the takeover.
	ReclaimEvent(ctx context.Context, eventID string, staleBefore time.Time) (bool, error)

	// UpdateStatus moves the event out of processing into a terminal state,
	// storing the error message when one applies. Fails when the event id
	// is unknown.
	UpdateStatus(ctx context.Context, eventID string, status model.WebhookStatus, errorMessage *string) error

	// GetEvent returns the stored event, or nil when unknown.
	GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error)
}
