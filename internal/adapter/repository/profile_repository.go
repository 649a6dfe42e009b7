package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainErrors "github.com/jonit-dev/pixelperfect-sub009/internal/domain/errors"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	domainRepo "github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

type profileRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB, logger *zap.Logger) domainRepo.ProfileRepository {
	return &profileRepository{
		db:     db,
		logger: logger,
	}
}

func (r *profileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var profile model.Profile

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get profile",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

func (r *profileRepository) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*model.Profile, error) {
	var profile model.Profile

	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", stripeCustomerID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get profile by customer id",
			zap.String("stripe_customer_id", stripeCustomerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get profile by customer id: %w", err)
	}

	return &profile, nil
}

func (r *profileRepository) UpdateTier(ctx context.Context, userID uuid.UUID, tier string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ?", userID).
		Update("tier", tier)

	if result.Error != nil {
		r.logger.Error("Failed to update profile tier",
			zap.String("user_id", userID.String()),
			zap.String("tier", tier),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update profile tier: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domainErrors.ErrProfileNotFound, userID)
	}

	return nil
}

// LinkStripeCustomer stores the customer id, creating the profile row when
// the user has never been seen before.
func (r *profileRepository) LinkStripeCustomer(ctx context.Context, userID uuid.UUID, email, stripeCustomerID string) error {
	profile := &model.Profile{
		UserID:           userID,
		Email:            email,
		Tier:             "free",
		StripeCustomerID: stripeCustomerID,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"stripe_customer_id": stripeCustomerID,
		}),
	}).Create(profile).Error

	if err != nil {
		r.logger.Error("Failed to link stripe customer",
			zap.String("user_id", userID.String()),
			zap.String("stripe_customer_id", stripeCustomerID),
			zap.Error(err))
		return fmt.Errorf("failed to link stripe customer: %w", err)
	}

	return nil
}
