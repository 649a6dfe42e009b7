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

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/gateway"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

// EventKind is the closed set of webhook event types this service acts on.
// Everything else classifies as KindUnhandled and is recorded as
// unrecoverable so Stripe stops redelivering it.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindCheckoutCompleted
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindInvoicePaid
	KindInvoicePaymentFailed
	KindChargeDisputeCreated
)

// ClassifyEvent maps a Stripe event-type string onto an EventKind.
func ClassifyEvent(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "customer.subscription.updated":
		return KindSubscriptionUpdated
	case "customer.subscription.deleted":
		return KindSubscriptionDeleted
	case "invoice.paid", "invoice.payment_succeeded":
		return KindInvoicePaid
	case "invoice.payment_failed":
		return KindInvoicePaymentFailed
	case "charge.dispute.created":
		return KindChargeDisputeCreated
	default:
		return KindUnhandled
	}
}

// WebhookProcessor drives the billing state machine from verified Stripe
// events. Handlers re-derive correctness from stored state rather than
// assuming cross-event ordering, and every per-user credit mutation is
// idempotent under a reference id, so redelivered or reordered events
// converge on the same state.
type WebhookProcessor struct {
	idempotency *IdempotencyService
	credits     repository.CreditRepository
	subs        repository.SubscriptionRepository
	profiles    repository.ProfileRepository
	plans       repository.PlanRepository
	stripe      gateway.StripeGateway
	publisher   messaging.RedisClient
	logger      *zap.Logger
}

// NewWebhookProcessor creates a new webhook processor
func NewWebhookProcessor(
	idempotency *IdempotencyService,
	credits repository.CreditRepository,
	subs repository.SubscriptionRepository,
	profiles repository.ProfileRepository,
	plans repository.PlanRepository,
	stripeGateway gateway.StripeGateway,
	publisher messaging.RedisClient,
	logger *zap.Logger,
) *WebhookProcessor {
	return &WebhookProcessor{
		idempotency: idempotency,
		credits:     credits,
		subs:        subs,
		profiles:    profiles,
		plans:       plans,
		stripe:      stripeGateway,
		publisher:   publisher,
		logger:      logger,
	}
}

// ProcessEvent handles one verified event delivery. A nil return means the
// HTTP layer should acknowledge with 200; an error means 5xx so Stripe
// redelivers.
func (p *WebhookProcessor) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	var stripeCreatedAt *time.Time
	if event.Created > 0 {
		t := time.Unix(event.Created, 0).UTC()
		stripeCreatedAt = &t
	}

	claim, err := p.idempotency.ClaimEvent(ctx, event.ID, string(event.Type), json.RawMessage(event.Data.Raw), stripeCreatedAt)
	if err != nil {
		return err
	}
	if !claim.IsNew {
		// Duplicate delivery: either another worker owns it or it already
		// reached a terminal state. Acknowledge without reprocessing.
		return nil
	}

	kind := ClassifyEvent(string(event.Type))
	if kind == KindUnhandled {
		p.logger.Info("Ignoring unhandled webhook event type",
			zap.String("stripe_event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		p.idempotency.MarkUnrecoverable(ctx, event.ID, string(event.Type))
		return nil
	}

	if err := p.dispatch(ctx, kind, event); err != nil {
		p.logger.Error("Webhook event processing failed",
			zap.String("stripe_event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		p.idempotency.MarkFailed(ctx, event.ID, err)
		return err
	}

	return p.idempotency.MarkCompleted(ctx, event.ID)
}

func (p *WebhookProcessor) dispatch(ctx context.Context, kind EventKind, event *stripe.Event) error {
	switch kind {
	case KindCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event)
	case KindSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, event)
	case KindSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, event)
	case KindInvoicePaid:
		return p.handleInvoicePaid(ctx, event)
	case KindInvoicePaymentFailed:
		return p.handleInvoicePaymentFailed(ctx, event)
	case KindChargeDisputeCreated:
		return p.handleChargeDisputeCreated(ctx, event)
	default:
		return fmt.Errorf("no handler for event kind %d", kind)
	}
}

// handleInvoicePaid allocates the monthly credits for a period renewal. The
// allocation is keyed by the invoice id, so a redelivered event finds the
// existing transaction and adds nothing.
func (p *WebhookProcessor) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice payload: %w", err)
	}

	if invoice.Customer == nil {
		return fmt.Errorf("invoice %s has no customer", invoice.ID)
	}
	if invoice.Subscription == nil {
		// One-off invoices (credit packs flow through checkout, not
		// invoices) carry no renewal.
		p.logger.Info("Invoice without subscription, nothing to allocate",
			zap.String("invoice_id", invoice.ID))
		return nil
	}

	profile, err := p.profiles.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("no profile for stripe customer %s", invoice.Customer.ID)
	}

	plan, err := p.resolveInvoicePlan(ctx, &invoice)
	if err != nil {
		return err
	}
	if plan == nil {
		p.logger.Warn("Invoice price maps to no active plan, skipping allocation",
			zap.String("invoice_id", invoice.ID))
		return nil
	}

	maxRollover := plan.MaxRollover()
	balance, tx, err := p.credits.AllocateSubscriptionCredits(ctx,
		profile.UserID,
		plan.MonthlyCredits(),
		&maxRollover,
		model.TransactionTypeSubscription,
		fmt.Sprintf("Monthly credit allocation (%s)", plan.DisplayName),
		"invoice:"+invoice.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to allocate renewal credits: %w", err)
	}

	if tx == nil {
		p.logger.Info("Renewal credits already allocated for invoice",
			zap.String("invoice_id", invoice.ID),
			zap.String("user_id", profile.UserID.String()))
		return nil
	}

	p.advancePeriodFromInvoice(ctx, &invoice)

	p.logger.Info("Allocated renewal credits",
		zap.String("invoice_id", invoice.ID),
		zap.String("user_id", profile.UserID.String()),
		zap.String("amount", tx.Amount.String()),
		zap.String("balance_after", tx.BalanceAfter.String()))

	publishCreditsChanged(ctx, p.publisher, p.logger, profile.UserID, balance.Total().String())
	return nil
}

// resolveInvoicePlan prefers the locally stored subscription's plan and
// falls back to the price id on the invoice line.
func (p *WebhookProcessor) resolveInvoicePlan(ctx context.Context, invoice *stripe.Invoice) (*model.PaymentPlan, error) {
	local, err := p.subs.GetByStripeSubscriptionID(ctx, invoice.Subscription.ID)
	if err != nil {
		return nil, err
	}
	if local != nil && local.Plan != nil {
		return local.Plan, nil
	}

	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line.Price == nil {
				continue
			}
			plan, err := p.plans.GetByPriceID(ctx, line.Price.ID)
			if err != nil {
				return nil, err
			}
			if plan != nil {
				return plan, nil
			}
		}
	}

	return nil, nil
}

// advancePeriodFromInvoice stores the new billing period on the local
// subscription row. Best-effort: the subscription.updated event carries the
// same boundaries and reconciles any miss.
func (p *WebhookProcessor) advancePeriodFromInvoice(ctx context.Context, invoice *stripe.Invoice) {
	if invoice.Lines == nil || len(invoice.Lines.Data) == 0 || invoice.Lines.Data[0].Period == nil {
		return
	}
	period := invoice.Lines.Data[0].Period

	local, err := p.subs.GetByStripeSubscriptionID(ctx, invoice.Subscription.ID)
	if err != nil || local == nil {
		return
	}

	local.CurrentPeriodStart = time.Unix(period.Start, 0).UTC()
	local.CurrentPeriodEnd = time.Unix(period.End, 0).UTC()
	if err := p.subs.Upsert(ctx, local); err != nil {
		p.logger.Warn("Failed to advance subscription period",
			zap.String("stripe_subscription_id", invoice.Subscription.ID),
			zap.Error(err))
	}
}

// handleCheckoutCompleted finalizes a checkout session: payment mode is a
// credit pack purchase, subscription mode seeds the local subscription row.
func (p *WebhookProcessor) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session payload: %w", err)
	}

	userID, err := checkoutUserID(&session)
	if err != nil {
		return err
	}

	if session.Customer != nil {
		email := ""
		if session.CustomerDetails != nil {
			email = session.CustomerDetails.Email
		}
		if err := p.profiles.LinkStripeCustomer(ctx, userID, email, session.Customer.ID); err != nil {
			return err
		}
	}

	switch session.Mode {
	case stripe.CheckoutSessionModePayment:
		return p.creditPackPurchase(ctx, userID, &session)
	case stripe.CheckoutSessionModeSubscription:
		return p.seedSubscription(ctx, userID, &session)
	default:
		p.logger.Info("Checkout session in unexpected mode, nothing to do",
			zap.String("session_id", session.ID),
			zap.String("mode", string(session.Mode)))
		return nil
	}
}

// checkoutUserID resolves our user id from the session. Checkout sessions
// are created with the user id as client_reference_id; metadata is the
// fallback for sessions created before that convention.
func checkoutUserID(session *stripe.CheckoutSession) (uuid.UUID, error) {
	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["user_id"]
	}
	if ref == "" {
		return uuid.Nil, fmt.Errorf("checkout session %s carries no user reference", session.ID)
	}

	userID, err := uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("checkout session %s has invalid user reference %q: %w", session.ID, ref, err)
	}
	return userID, nil
}

func (p *WebhookProcessor) creditPackPurchase(ctx context.Context, userID uuid.UUID, session *stripe.CheckoutSession) error {
	creditsStr := session.Metadata["credits"]
	if creditsStr == "" {
		return fmt.Errorf("payment-mode session %s carries no credits metadata", session.ID)
	}
	amount, err := decimal.NewFromString(creditsStr)
	if err != nil || !amount.IsPositive() {
		return fmt.Errorf("payment-mode session %s has invalid credits metadata %q", session.ID, creditsStr)
	}

	// Key the purchase by payment intent so a later dispute on the charge
	// can locate exactly this grant.
	referenceID := "checkout:" + session.ID
	if session.PaymentIntent != nil {
		referenceID = "pi:" + session.PaymentIntent.ID
	}

	balance, tx, err := p.credits.AddPurchasedCredits(ctx,
		userID,
		amount,
		model.TransactionTypePurchase,
		"Credit pack purchase",
		referenceID,
	)
	if err != nil {
		return fmt.Errorf("failed to credit pack purchase: %w", err)
	}

	if tx == nil {
		p.logger.Info("Credit pack already granted for session",
			zap.String("session_id", session.ID),
			zap.String("user_id", userID.String()))
		return nil
	}

	p.logger.Info("Granted credit pack",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()))

	publishCreditsChanged(ctx, p.publisher, p.logger, userID, balance.Total().String())
	return nil
}

// seedSubscription makes sure the local row exists after a subscription
// checkout. The session payload only carries the subscription id, so the
// full object is fetched from Stripe.
func (p *WebhookProcessor) seedSubscription(ctx context.Context, userID uuid.UUID, session *stripe.CheckoutSession) error {
	if session.Subscription == nil {
		return fmt.Errorf("subscription-mode session %s carries no subscription", session.ID)
	}

	sub, err := p.stripe.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription %s: %w", session.Subscription.ID, err)
	}

	return p.syncSubscription(ctx, userID, sub, originCheckout)
}

const (
	originCheckout = "checkout"
	originUpdate   = "subscription.updated"
)

// syncSubscription upserts the local row from the provider object, keeps the
// profile tier in line with the plan, and retroactively enforces the tier's
// rollover cap on the subscription pool.
func (p *WebhookProcessor) syncSubscription(ctx context.Context, userID uuid.UUID, sub *stripe.Subscription, origin string) error {
	priceID, itemID := subscriptionItem(sub)

	plan, err := p.plans.GetByPriceID(ctx, priceID)
	if err != nil {
		return err
	}

	row := &model.Subscription{
		UserID:               userID,
		StripeCustomerID:     sub.Customer.ID,
		StripeSubscriptionID: sub.ID,
		StripeItemID:         itemID,
		StripePriceID:        priceID,
		Status:               model.SubscriptionStatus(sub.Status),
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if plan != nil {
		row.PlanID = &plan.ID
	}
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		row.CanceledAt = &t
	}
	if raw, err := json.Marshal(sub); err == nil {
		var payload model.JSONB
		if json.Unmarshal(raw, &payload) == nil {
			row.RawSubscriptionData = payload
		}
	}

	if err := p.subs.Upsert(ctx, row); err != nil {
		return err
	}

	if plan == nil {
		p.logger.Warn("Subscription price maps to no active plan",
			zap.String("stripe_subscription_id", sub.ID),
			zap.String("stripe_price_id", priceID),
			zap.String("origin", origin))
		return nil
	}

	if row.Status.IsEntitling() {
		if err := p.profiles.UpdateTier(ctx, userID, plan.Tier); err != nil {
			return err
		}
	} else {
		// past_due, unpaid and friends keep the subscription row but lose
		// the paid tier label until payment recovers.
		if err := p.profiles.UpdateTier(ctx, userID, "free"); err != nil {
			return err
		}
	}

	// A downgrade may leave the subscription pool above the new tier's
	// ceiling; a zero-amount allocation enforces the cap without writing a
	// transaction row.
	maxRollover := plan.MaxRollover()
	if _, _, err := p.credits.AllocateSubscriptionCredits(ctx,
		userID, decimal.Zero, &maxRollover,
		model.TransactionTypeSubscription, "", "",
	); err != nil {
		return fmt.Errorf("failed to enforce rollover cap: %w", err)
	}

	return nil
}

func subscriptionItem(sub *stripe.Subscription) (priceID, itemID string) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return "", ""
	}
	item := sub.Items.Data[0]
	itemID = item.ID
	if item.Price != nil {
		priceID = item.Price.ID
	}
	return priceID, itemID
}

func (p *WebhookProcessor) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}
	if sub.Customer == nil {
		return fmt.Errorf("subscription %s has no customer", sub.ID)
	}

	profile, err := p.profiles.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		return fmt.Errorf("no profile for stripe customer %s", sub.Customer.ID)
	}

	return p.syncSubscription(ctx, profile.UserID, &sub, originUpdate)
}

// handleSubscriptionDeleted marks the local row canceled and resets the tier
// label. Credits persist: the subscription pool keeps its balance and the
// purchased pool is untouched.
func (p *WebhookProcessor) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	if err := p.subs.MarkCanceled(ctx, sub.ID); err != nil {
		return err
	}

	if sub.Customer == nil {
		return nil
	}
	profile, err := p.profiles.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		return nil
	}

	if err := p.profiles.UpdateTier(ctx, profile.UserID, "free"); err != nil {
		return err
	}

	p.logger.Info("Subscription canceled",
		zap.String("stripe_subscription_id", sub.ID),
		zap.String("user_id", profile.UserID.String()))
	return nil
}

// handleChargeDisputeCreated claws back the credits of the disputed
// purchase from the purchased pool, floored at zero.
func (p *WebhookProcessor) handleChargeDisputeCreated(ctx context.Context, event *stripe.Event) error {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return fmt.Errorf("failed to parse dispute payload: %w", err)
	}

	if dispute.PaymentIntent == nil {
		p.logger.Warn("Dispute without payment intent, nothing to claw back",
			zap.String("dispute_id", dispute.ID))
		return nil
	}

	purchase, err := p.credits.GetTransactionByReference(ctx, "pi:"+dispute.PaymentIntent.ID)
	if err != nil {
		return err
	}
	if purchase == nil {
		p.logger.Warn("Dispute matches no recorded purchase",
			zap.String("dispute_id", dispute.ID),
			zap.String("payment_intent", dispute.PaymentIntent.ID))
		return nil
	}

	balance, tx, err := p.credits.DebitPurchasedCredits(ctx,
		purchase.UserID,
		purchase.Amount,
		model.TransactionTypeRefund,
		fmt.Sprintf("Chargeback clawback (dispute %s)", dispute.ID),
		"dispute:"+dispute.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to claw back disputed credits: %w", err)
	}

	if tx == nil {
		p.logger.Info("Dispute already clawed back",
			zap.String("dispute_id", dispute.ID))
		return nil
	}

	p.logger.Info("Clawed back disputed credits",
		zap.String("dispute_id", dispute.ID),
		zap.String("user_id", purchase.UserID.String()),
		zap.String("amount", tx.Amount.String()))

	publishCreditsChanged(ctx, p.publisher, p.logger, purchase.UserID, balance.Total().String())
	return nil
}

// handleInvoicePaymentFailed records the failure for observability only.
// Entitlement changes ride on the subsequent subscription.updated event
// carrying past_due.
func (p *WebhookProcessor) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to parse invoice payload: %w", err)
	}

	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}
	p.logger.Warn("Invoice payment failed",
		zap.String("invoice_id", invoice.ID),
		zap.String("stripe_customer_id", customerID))
	return nil
}
