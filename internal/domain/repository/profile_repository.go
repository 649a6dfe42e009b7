package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
)

// ProfileRepository resolves users to profiles and keeps the tier label in
// sync with subscription state.
type ProfileRepository interface {
	// GetByUserID returns the profile, or nil when none exists.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)

	// GetByStripeCustomerID resolves an inbound webhook customer reference
	// to a profile, or nil when the customer is unknown.
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*model.Profile, error)

	// UpdateTier sets the profile's tier label.
	UpdateTier(ctx context.Context, userID uuid.UUID, tier string) error

	// LinkStripeCustomer stores the Stripe customer id on the profile,
	// creating the profile when absent.
	LinkStripeCustomer(ctx context.Context, userID uuid.UUID, email, stripeCustomerID string) error
}
