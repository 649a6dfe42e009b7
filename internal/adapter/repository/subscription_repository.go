package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainErrors "github.com/jonit-dev/pixelperfect-sub009/internal/domain/errors"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	domainRepo "github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

type subscriptionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB, logger *zap.Logger) domainRepo.SubscriptionRepository {
	return &subscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// GetCurrentByUserID returns the most recently created entitling
// subscription row for the user, or nil when there is none.
func (r *subscriptionRepository) GetCurrentByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status IN (?, ?)", userID,
			model.SubscriptionStatusActive, model.SubscriptionStatusTrialing).
		Order("created_at DESC").
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get current subscription",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get current subscription: %w", err)
	}

	return &sub, nil
}

// GetByStripeSubscriptionID returns the row for a provider subscription id.
func (r *subscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	var sub model.Subscription

	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get subscription",
			zap.String("stripe_subscription_id", stripeSubscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return &sub, nil
}

// Upsert creates or updates the row keyed by stripe_subscription_id.
func (r *subscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"stripe_customer_id",
			"stripe_item_id",
			"stripe_price_id",
			"plan_id",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"canceled_at",
			"raw_subscription_data",
			"updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		r.logger.Error("Failed to upsert subscription",
			zap.String("stripe_subscription_id", sub.StripeSubscriptionID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	// Repopulate the ID after an update-path upsert.
	return r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

// MarkCanceled sets the row to canceled.
func (r *subscriptionRepository) MarkCanceled(ctx context.Context, stripeSubscriptionID string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(map[string]interface{}{
			"status":      model.SubscriptionStatusCanceled,
			"canceled_at": &now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark subscription canceled",
			zap.String("stripe_subscription_id", stripeSubscriptionID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark subscription canceled: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domainErrors.ErrSubscriptionNotFound, stripeSubscriptionID)
	}

	return nil
}
