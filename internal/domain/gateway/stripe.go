package gateway

import (
	"context"

	"github.com/stripe/stripe-go/v79"
)

// StripeGateway is the narrow slice of the Stripe API the billing core
// needs. Usecases depend on this interface so tests can substitute a mock;
// the concrete implementation lives in infrastructure/provider/stripe.
type StripeGateway interface {
	// GetSubscription fetches the authoritative subscription state from
	// Stripe with items and prices expanded.
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)

	// UpdateSubscriptionPrice swaps the subscription item to the new price
	// with proration enabled.
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*stripe.Subscription, error)

	// CancelAtPeriodEnd flags the subscription to cancel when the current
	// period ends.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}
