package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
)

// SubscriptionRepository manages the local cache of Stripe subscription
// state.
type SubscriptionRepository interface {
	// GetCurrentByUserID returns the user's current subscription: the most
	// recently created row with an entitling status. Returns nil when the
	// user has no active or trialing subscription.
	GetCurrentByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error)

	// GetByStripeSubscriptionID returns the row for a provider subscription
	// id, or nil when unknown.
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error)

	// Upsert creates or updates the row keyed by stripe_subscription_id.
	Upsert(ctx context.Context, sub *model.Subscription) error

	// MarkCanceled sets the row to canceled with the given timestamp.
	MarkCanceled(ctx context.Context, stripeSubscriptionID string) error
}
