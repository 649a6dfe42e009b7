package repository

import (
	"context"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
)

// PlanRepository reads the plan catalog.
type PlanRepository interface {
	// GetByPriceID returns the active plan for a Stripe price id, or nil
	// when the price is unknown or inactive.
	GetByPriceID(ctx context.Context, stripePriceID string) (*model.PaymentPlan, error)

	// GetByID returns a plan by its primary key, or nil when absent.
	GetByID(ctx context.Context, id int64) (*model.PaymentPlan, error)

	// GetActivePlans returns active plans ordered for display.
	GetActivePlans(ctx context.Context) ([]*model.PaymentPlan, error)
}
