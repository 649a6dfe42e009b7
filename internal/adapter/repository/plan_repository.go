package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	domainRepo "github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

type planRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB, logger *zap.Logger) domainRepo.PlanRepository {
	return &planRepository{
		db:     db,
		logger: logger,
	}
}

func (r *planRepository) GetByPriceID(ctx context.Context, stripePriceID string) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan

	err := r.db.WithContext(ctx).
		Where("stripe_price_id = ? AND is_active = ?", stripePriceID, true).
		First(&plan).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get plan by price id",
			zap.String("stripe_price_id", stripePriceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get plan by price id: %w", err)
	}

	return &plan, nil
}

func (r *planRepository) GetByID(ctx context.Context, id int64) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan

	err := r.db.WithContext(ctx).First(&plan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get plan", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return &plan, nil
}

func (r *planRepository) GetActivePlans(ctx context.Context) ([]*model.PaymentPlan, error) {
	var plans []*model.PaymentPlan

	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&plans).Error

	if err != nil {
		r.logger.Error("Failed to list active plans", zap.Error(err))
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}

	return plans, nil
}
