package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

const (
	markCompletedAttempts = 3
	markCompletedBackoff  = 100 * time.Millisecond

	// processingStaleAfter is how long a processing row may sit untouched
	// before a redelivery is allowed to take it over. Long enough that a
	// live worker never loses its claim mid-handling.
	processingStaleAfter = 5 * time.Minute
)

// ClaimResult is the outcome of attempting to claim a webhook event.
type ClaimResult struct {
	// IsNew is true when this call won the insert and owns processing.
	IsNew bool
	// Status is the stored status when the event was already claimed.
	Status model.WebhookStatus
}

// IdempotencyService guarantees at-most-once processing of webhook events.
// The claim is a single atomic insert against the unique stripe_event_id
// column; everything else builds on that primitive.
type IdempotencyService struct {
	events repository.WebhookEventRepository
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service
func NewIdempotencyService(events repository.WebhookEventRepository, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		events: events,
		logger: logger,
	}
}

// ClaimEvent attempts to claim the event for processing. Losing the claim to
// an earlier or concurrent delivery is not an error: the caller gets
// IsNew=false plus the stored status and short-circuits.
//
// A lost claim against a non-terminal row is a second chance, not a
// duplicate: the earlier delivery failed or crashed mid-handling, and the
// provider redelivered. Such rows are reclaimed (failed ones immediately,
// processing ones once stale) so the mutation is not silently dropped.
func (s *IdempotencyService) ClaimEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage, stripeCreatedAt *time.Time) (ClaimResult, error) {
	claimed, existing, err := s.events.InsertIfAbsent(ctx, eventID, eventType, payload, stripeCreatedAt)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to claim event %s: %w", eventID, err)
	}

	if claimed {
		return ClaimResult{IsNew: true, Status: model.WebhookStatusProcessing}, nil
	}

	if !existing.Status.IsTerminal() {
		reclaimed, err := s.events.ReclaimEvent(ctx, eventID, time.Now().Add(-processingStaleAfter))
		if err != nil {
			return ClaimResult{}, fmt.Errorf("failed to reclaim event %s: %w", eventID, err)
		}
		if reclaimed {
			s.logger.Warn("Reclaimed webhook event left in a non-terminal state",
				zap.String("stripe_event_id", eventID),
				zap.String("event_type", eventType),
				zap.String("previous_status", string(existing.Status)))
			return ClaimResult{IsNew: true, Status: model.WebhookStatusProcessing}, nil
		}
	}

	s.logger.Info("Duplicate webhook event delivery",
		zap.String("stripe_event_id", eventID),
		zap.String("event_type", eventType),
		zap.String("status", string(existing.Status)))

	return ClaimResult{IsNew: false, Status: existing.Status}, nil
}

// MarkCompleted records successful processing. This must fail loudly: the
// business mutation has already committed, and silently losing the completed
// marker would let a provider retry double-process the event. Transient store
// errors are retried with exponential backoff before surfacing.
func (s *IdempotencyService) MarkCompleted(ctx context.Context, eventID string) error {
	var lastErr error
	backoff := markCompletedBackoff

	for attempt := 1; attempt <= markCompletedAttempts; attempt++ {
		lastErr = s.events.UpdateStatus(ctx, eventID, model.WebhookStatusCompleted, nil)
		if lastErr == nil {
			return nil
		}

		s.logger.Warn("Failed to mark webhook event completed",
			zap.String("stripe_event_id", eventID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt < markCompletedAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("failed to mark event %s completed: %w", eventID, ctx.Err())
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("failed to mark event %s completed after %d attempts: %w", eventID, markCompletedAttempts, lastErr)
}

// MarkFailed records a processing failure. Best-effort: the handler error is
// what gets surfaced to the provider, so a failed status write here is only
// logged.
func (s *IdempotencyService) MarkFailed(ctx context.Context, eventID string, cause error) {
	msg := cause.Error()
	if err := s.events.UpdateStatus(ctx, eventID, model.WebhookStatusFailed, &msg); err != nil {
		s.logger.Error("Failed to mark webhook event failed",
			zap.String("stripe_event_id", eventID),
			zap.Error(err))
	}
}

// MarkUnrecoverable records an event type this service does not handle, so
// redeliveries stop retrying it. Best-effort.
func (s *IdempotencyService) MarkUnrecoverable(ctx context.Context, eventID, eventType string) {
	msg := fmt.Sprintf("unhandled event type: %s", eventType)
	if err := s.events.UpdateStatus(ctx, eventID, model.WebhookStatusUnrecoverable, &msg); err != nil {
		s.logger.Error("Failed to mark webhook event unrecoverable",
			zap.String("stripe_event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
