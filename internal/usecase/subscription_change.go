package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	domainErrors "github.com/jonit-dev/pixelperfect-sub009/internal/domain/errors"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/gateway"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/ledger"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
	apperrors "github.com/jonit-dev/pixelperfect-sub009/pkg/errors"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

// PlanChangeResponse is returned to the caller after a successful plan
// change.
type PlanChangeResponse struct {
	SubscriptionID     string    `json:"subscription_id"`
	Status             string    `json:"status"`
	NewPriceID         string    `json:"new_price_id"`
	CreditsAdded       string    `json:"credits_added"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
}

// SubscriptionService reconciles plan changes against Stripe. Stripe is the
// source of truth for subscription state; local rows are a cache that the
// webhook stream keeps converged.
type SubscriptionService struct {
	subs      repository.SubscriptionRepository
	plans     repository.PlanRepository
	profiles  repository.ProfileRepository
	credits   repository.CreditRepository
	stripe    gateway.StripeGateway
	publisher messaging.RedisClient
	logger    *zap.Logger
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	profiles repository.ProfileRepository,
	credits repository.CreditRepository,
	stripeGateway gateway.StripeGateway,
	publisher messaging.RedisClient,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subs:      subs,
		plans:     plans,
		profiles:  profiles,
		credits:   credits,
		stripe:    stripeGateway,
		publisher: publisher,
		logger:    logger,
	}
}

// GetCurrent returns the user's current subscription with its plan, or nil
// when the user has none.
func (s *SubscriptionService) GetCurrent(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	return s.subs.GetCurrentByUserID(ctx, userID)
}

// ChangePlan moves the user's subscription to the target price.
//
// The authoritative subscription is re-fetched from Stripe immediately
// before mutating; if its price no longer matches the locally stored
// expectation the change is rejected with SUBSCRIPTION_MODIFIED and nothing
// is mutated. The Stripe update is the commit point: local writes afterwards
// are best-effort, because the subscription.updated webhook reconciles them.
func (s *SubscriptionService) ChangePlan(ctx context.Context, userID uuid.UUID, targetPriceID string) (*PlanChangeResponse, error) {
	current, err := s.subs.GetCurrentByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewAppError(apperrors.ErrNoActiveSubscription,
			"no active subscription; start a new subscription through checkout", domainErrors.ErrNoActiveSubscription)
	}

	targetPlan, err := s.plans.GetByPriceID(ctx, targetPriceID)
	if err != nil {
		return nil, err
	}
	if targetPlan == nil || targetPlan.Type != model.PlanTypeSubscription {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidPriceID,
			"target price does not resolve to an active subscription plan", domainErrors.ErrInvalidPriceID)
	}
	if targetPlan.StripePriceID == current.StripePriceID {
		return nil, apperrors.NewAppError(apperrors.ErrSamePlan,
			"subscription is already on this plan", domainErrors.ErrSamePlan)
	}

	// Fresh re-fetch right before mutating. A checkout in another tab, a
	// support-side change, or a still-unprocessed webhook can have moved
	// the subscription since our local row was written.
	fresh, err := s.stripe.GetSubscription(ctx, current.StripeSubscriptionID)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrStripeError,
			fmt.Sprintf("failed to fetch subscription: %s", stripeMessage(err)), err)
	}

	freshPriceID, freshItemID := subscriptionItem(fresh)
	if freshPriceID != current.StripePriceID {
		s.logger.Warn("Subscription modified since last sync, rejecting plan change",
			zap.String("user_id", userID.String()),
			zap.String("expected_price_id", current.StripePriceID),
			zap.String("actual_price_id", freshPriceID))
		return nil, apperrors.NewAppError(apperrors.ErrSubscriptionModified,
			"subscription was modified concurrently; refresh and retry", domainErrors.ErrSubscriptionModified)
	}

	updated, err := s.stripe.UpdateSubscriptionPrice(ctx, fresh.ID, freshItemID, targetPriceID)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrStripeError,
			fmt.Sprintf("failed to update subscription: %s", stripeMessage(err)), err)
	}

	creditsAdded := s.applyLocalPlanChange(ctx, userID, current, targetPlan, updated)

	return &PlanChangeResponse{
		SubscriptionID:     updated.ID,
		Status:             string(updated.Status),
		NewPriceID:         targetPriceID,
		CreditsAdded:       creditsAdded.String(),
		CurrentPeriodStart: time.Unix(updated.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(updated.CurrentPeriodEnd, 0).UTC(),
	}, nil
}

// applyLocalPlanChange writes the local consequences of a committed plan
// change: subscription row, profile tier, credit delta. Failures are logged
// and swallowed; the provider-side change succeeded and the webhook stream
// will reconcile local state.
func (s *SubscriptionService) applyLocalPlanChange(
	ctx context.Context,
	userID uuid.UUID,
	current *model.Subscription,
	targetPlan *model.PaymentPlan,
	updated *stripe.Subscription,
) decimal.Decimal {
	currentMonthly := 0
	if current.Plan != nil {
		currentMonthly = current.Plan.CreditsPerMonth
	}

	change := ledger.ApplyPlanChange(decimal.Zero, currentMonthly, targetPlan.CreditsPerMonth, targetPlan.MaxRollover())

	priceID, itemID := subscriptionItem(updated)
	row := &model.Subscription{
		UserID:               userID,
		StripeCustomerID:     current.StripeCustomerID,
		StripeSubscriptionID: updated.ID,
		StripeItemID:         itemID,
		StripePriceID:        priceID,
		PlanID:               &targetPlan.ID,
		Status:               model.SubscriptionStatus(updated.Status),
		CurrentPeriodStart:   time.Unix(updated.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(updated.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:    updated.CancelAtPeriodEnd,
	}
	if raw, err := json.Marshal(updated); err == nil {
		var payload model.JSONB
		if json.Unmarshal(raw, &payload) == nil {
			row.RawSubscriptionData = payload
		}
	}
	if err := s.subs.Upsert(ctx, row); err != nil {
		s.logger.Error("Failed to store subscription after plan change",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	if err := s.profiles.UpdateTier(ctx, userID, targetPlan.Tier); err != nil {
		s.logger.Error("Failed to update tier after plan change",
			zap.String("user_id", userID.String()),
			zap.String("tier", targetPlan.Tier),
			zap.Error(err))
	}

	maxRollover := targetPlan.MaxRollover()
	if change.Upgrade {
		referenceID := fmt.Sprintf("plan_change:%s:%s:%d", updated.ID, targetPlan.StripePriceID, updated.CurrentPeriodStart)
		balance, upgradeTx, err := s.credits.AllocateSubscriptionCredits(ctx,
			userID,
			change.CreditsAdded,
			&maxRollover,
			model.TransactionTypePlanUpgrade,
			fmt.Sprintf("Plan upgrade to %s", targetPlan.DisplayName),
			referenceID,
		)
		if err != nil {
			s.logger.Error("Failed to grant upgrade credits",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			return decimal.Zero
		}
		if upgradeTx == nil {
			// The reference id already existed: a replayed change for the
			// same subscription, price and period. Nothing new was written,
			// so the response must not report a delta.
			s.logger.Info("Upgrade credits already granted for this period",
				zap.String("user_id", userID.String()),
				zap.String("reference_id", referenceID))
			return decimal.Zero
		}
		publishCreditsChanged(ctx, s.publisher, s.logger, userID, balance.Total().String())
		return change.CreditsAdded
	}

	// Downgrade: no debit, but the pool must not stay above the new cap.
	if _, _, err := s.credits.AllocateSubscriptionCredits(ctx,
		userID, decimal.Zero, &maxRollover,
		model.TransactionTypeSubscription, "", "",
	); err != nil {
		s.logger.Error("Failed to enforce rollover cap after downgrade",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
	return decimal.Zero
}

// CancelAtPeriodEnd flags the user's subscription to end at the close of the
// current billing period. Credits and access persist until then.
func (s *SubscriptionService) CancelAtPeriodEnd(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	current, err := s.subs.GetCurrentByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewAppError(apperrors.ErrNoActiveSubscription,
			"no active subscription to cancel", domainErrors.ErrNoActiveSubscription)
	}

	updated, err := s.stripe.CancelAtPeriodEnd(ctx, current.StripeSubscriptionID)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrStripeError,
			fmt.Sprintf("failed to cancel subscription: %s", stripeMessage(err)), err)
	}

	current.CancelAtPeriodEnd = updated.CancelAtPeriodEnd
	if err := s.subs.Upsert(ctx, current); err != nil {
		s.logger.Error("Failed to store cancel flag",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	return current, nil
}

// stripeMessage extracts the provider's human-readable message so the
// surfaced STRIPE_ERROR keeps it.
func stripeMessage(err error) string {
	var stripeErr *stripe.Error
	if apperrors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
