package stripe

import (
	"context"
	"fmt"

	stripesdk "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/gateway"
)

// Client is the concrete Stripe gateway, a thin wrapper over the official
// SDK scoped to the operations the billing core performs.
type Client struct {
	api    *client.API
	logger *zap.Logger
}

// NewClient creates the Stripe gateway from a secret key.
func NewClient(secretKey string, logger *zap.Logger) gateway.StripeGateway {
	api := client.New(secretKey, nil)
	return &Client{
		api:    api,
		logger: logger,
	}
}

// GetSubscription fetches the subscription with items and prices expanded,
// so callers can read the current price without another round trip.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*stripesdk.Subscription, error) {
	params := &stripesdk.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		c.logger.Error("Failed to fetch subscription from Stripe",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	return sub, nil
}

// UpdateSubscriptionPrice swaps the subscription item to the new price with
// proration, so the customer is charged or credited the difference
// immediately.
func (c *Client) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*stripesdk.Subscription, error) {
	params := &stripesdk.SubscriptionParams{
		Items: []*stripesdk.SubscriptionItemsParams{
			{
				ID:    stripesdk.String(itemID),
				Price: stripesdk.String(priceID),
			},
		},
		ProrationBehavior: stripesdk.String(string(stripesdk.SubscriptionSchedulePhaseProrationBehaviorCreateProrations)),
	}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		c.logger.Error("Failed to update subscription price",
			zap.String("subscription_id", subscriptionID),
			zap.String("price_id", priceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	c.logger.Info("Subscription price updated",
		zap.String("subscription_id", subscriptionID),
		zap.String("price_id", priceID))
	return sub, nil
}

// CancelAtPeriodEnd flags the subscription to end when the current period
// closes, leaving access intact until then.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripesdk.Subscription, error) {
	params := &stripesdk.SubscriptionParams{
		CancelAtPeriodEnd: stripesdk.Bool(true),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		c.logger.Error("Failed to flag subscription for cancellation",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	c.logger.Info("Subscription flagged to cancel at period end",
		zap.String("subscription_id", subscriptionID))
	return sub, nil
}
