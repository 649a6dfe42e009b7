package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	domainRepo "github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

type webhookEventRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB, logger *zap.Logger) domainRepo.WebhookEventRepository {
	return &webhookEventRepository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent claims the event id with ON CONFLICT DO NOTHING. The unique
// index on stripe_event_id makes the claim atomic across concurrent
// deliveries; RowsAffected tells us whether this call won.
func (r *webhookEventRepository) InsertIfAbsent(ctx context.Context, eventID, eventType string, payload json.RawMessage, stripeCreatedAt *time.Time) (bool, *model.WebhookEvent, error) {
	var payloadMap model.JSONB
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &payloadMap); err != nil {
			return false, nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
	}

	event := &model.WebhookEvent{
		StripeEventID:   eventID,
		EventType:       eventType,
		Status:          model.WebhookStatusProcessing,
		Payload:         payloadMap,
		StripeCreatedAt: stripeCreatedAt,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)

	if result.Error != nil {
		r.logger.Error("Failed to claim webhook event",
			zap.String("stripe_event_id", eventID),
			zap.Error(result.Error))
		return false, nil, fmt.Errorf("failed to claim webhook event: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		return true, event, nil
	}

	existing, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		// The conflicting row vanished between the insert and the read.
		return false, nil, fmt.Errorf("webhook event %s disappeared after conflict", eventID)
	}
	return false, existing, nil
}

// ReclaimEvent takes over a row stuck outside a resting state. The
// conditional update is the concurrency control: across concurrent
// redeliveries of the same stuck event only one update matches, and a row a
// live worker still holds (processing, recently written) matches nothing.
func (r *webhookEventRepository) ReclaimEvent(ctx context.Context, eventID string, staleBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("stripe_event_id = ?", eventID).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			model.WebhookStatusFailed, model.WebhookStatusProcessing, staleBefore).
		Updates(map[string]interface{}{
			"status":              model.WebhookStatusProcessing,
			"processing_attempts": gorm.Expr("processing_attempts + 1"),
			"error_message":       nil,
		})

	if result.Error != nil {
		r.logger.Error("Failed to reclaim webhook event",
			zap.String("stripe_event_id", eventID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to reclaim webhook event: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// UpdateStatus moves the event into a terminal state.
func (r *webhookEventRepository) UpdateStatus(ctx context.Context, eventID string, status model.WebhookStatus, errorMessage *string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}
	if status == model.WebhookStatusCompleted || status == model.WebhookStatusUnrecoverable {
		now := time.Now()
		updates["processed_at"] = &now
	}

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("stripe_event_id = ?", eventID).
		Updates(updates)

	if result.Error != nil {
		r.logger.Error("Failed to update webhook event status",
			zap.String("stripe_event_id", eventID),
			zap.String("status", string(status)),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update webhook event status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}

	return nil
}

// GetEvent returns the stored event, or nil when unknown.
func (r *webhookEventRepository) GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := r.db.WithContext(ctx).
		Where("stripe_event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("stripe_event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}
