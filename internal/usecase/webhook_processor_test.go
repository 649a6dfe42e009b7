package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/internal/usecase"
)

type processorFixture struct {
	events   *MockWebhookEventRepository
	credits  *MockCreditRepository
	subs     *MockSubscriptionRepository
	profiles *MockProfileRepository
	plans    *MockPlanRepository
	gateway  *MockStripeGateway
	proc     *usecase.WebhookProcessor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		events:   new(MockWebhookEventRepository),
		credits:  new(MockCreditRepository),
		subs:     new(MockSubscriptionRepository),
		profiles: new(MockProfileRepository),
		plans:    new(MockPlanRepository),
		gateway:  new(MockStripeGateway),
	}
	logger := zap.NewNop()
	idempotency := usecase.NewIdempotencyService(f.events, logger)
	f.proc = usecase.NewWebhookProcessor(idempotency, f.credits, f.subs, f.profiles, f.plans, f.gateway, nil, logger)
	return f
}

func stripeEvent(id, eventType string, raw string) *stripe.Event {
	return &stripe.Event{
		ID:      id,
		Type:    stripe.EventType(eventType),
		Created: 1700000000,
		Data:    &stripe.EventData{Raw: []byte(raw)},
	}
}

func TestClassifyEvent(t *testing.T) {
	cases := map[string]usecase.EventKind{
		"checkout.session.completed":    usecase.KindCheckoutCompleted,
		"customer.subscription.updated": usecase.KindSubscriptionUpdated,
		"customer.subscription.deleted": usecase.KindSubscriptionDeleted,
		"invoice.paid":                  usecase.KindInvoicePaid,
		"invoice.payment_succeeded":     usecase.KindInvoicePaid,
		"invoice.payment_failed":        usecase.KindInvoicePaymentFailed,
		"charge.dispute.created":        usecase.KindChargeDisputeCreated,
		"product.created":               usecase.KindUnhandled,
		"":                              usecase.KindUnhandled,
	}
	for eventType, want := range cases {
		assert.Equal(t, want, usecase.ClassifyEvent(eventType), "event type %q", eventType)
	}
}

func TestWebhookProcessor_Duplicates(t *testing.T) {
	ctx := context.Background()

	t.Run("completed duplicate acknowledges without reprocessing", func(t *testing.T) {
		f := newProcessorFixture()
		existing := &model.WebhookEvent{StripeEventID: "evt_1", Status: model.WebhookStatusCompleted}
		f.events.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", mock.Anything, mock.Anything).
			Return(false, existing, nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "invoice.paid", `{"id":"in_1"}`))

		assert.NoError(t, err)
		// No business mutation and no status write happened.
		f.credits.AssertNotCalled(t, "AllocateSubscriptionCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.events.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("concurrent processing claim acknowledges", func(t *testing.T) {
		f := newProcessorFixture()
		existing := &model.WebhookEvent{StripeEventID: "evt_1", Status: model.WebhookStatusProcessing}
		f.events.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", mock.Anything, mock.Anything).
			Return(false, existing, nil)
		// The row is fresh, so the takeover finds nothing to reclaim.
		f.events.On("ReclaimEvent", ctx, "evt_1", mock.AnythingOfType("time.Time")).
			Return(false, nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "invoice.paid", `{"id":"in_1"}`))

		assert.NoError(t, err)
		f.credits.AssertNotCalled(t, "AllocateSubscriptionCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("claim store error surfaces for provider retry", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", mock.Anything, mock.Anything).
			Return(false, nil, errors.New("connection refused"))

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "invoice.paid", `{"id":"in_1"}`))

		assert.Error(t, err)
	})
}

func TestWebhookProcessor_Unhandled(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture()

	f.events.On("InsertIfAbsent", ctx, "evt_1", "product.created", mock.Anything, mock.Anything).
		Return(true, nil, nil)
	f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusUnrecoverable, mock.Anything).
		Return(nil)

	err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "product.created", `{"id":"prod_1"}`))

	assert.NoError(t, err)
	f.events.AssertExpectations(t)
}

func TestWebhookProcessor_InvoicePaid(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	raw := `{"id":"in_1","customer":{"id":"cus_1"},"subscription":{"id":"sub_1"}}`

	plan := &model.PaymentPlan{
		ID:              1,
		StripePriceID:   "price_starter",
		DisplayName:     "Starter",
		Tier:            "starter",
		Type:            model.PlanTypeSubscription,
		CreditsPerMonth: 100,
	}

	t.Run("allocates monthly credits keyed by invoice id", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
			Return(&model.Profile{UserID: userID}, nil)
		f.subs.On("GetByStripeSubscriptionID", ctx, "sub_1").
			Return(&model.Subscription{StripeSubscriptionID: "sub_1", Plan: plan}, nil)

		balance := &model.UserCreditBalance{
			UserID:              userID,
			SubscriptionCredits: decimal.NewFromInt(300),
		}
		tx := &model.CreditTransaction{Amount: decimal.NewFromInt(100), BalanceAfter: decimal.NewFromInt(300)}
		f.credits.On("AllocateSubscriptionCredits", ctx, userID,
			decimal.NewFromInt(100),
			mock.MatchedBy(func(cap *decimal.Decimal) bool {
				return cap != nil && cap.Equal(decimal.NewFromInt(600))
			}),
			model.TransactionTypeSubscription, mock.Anything, "invoice:in_1").
			Return(balance, tx, nil)
		f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "invoice.paid", raw))

		assert.NoError(t, err)
		f.credits.AssertExpectations(t)
		f.events.AssertExpectations(t)
	})

	t.Run("redelivered invoice adds nothing and still completes", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_2", "invoice.paid", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
			Return(&model.Profile{UserID: userID}, nil)
		f.subs.On("GetByStripeSubscriptionID", ctx, "sub_1").
			Return(&model.Subscription{StripeSubscriptionID: "sub_1", Plan: plan}, nil)

		balance := &model.UserCreditBalance{UserID: userID, SubscriptionCredits: decimal.NewFromInt(300)}
		// nil transaction means the reference id already existed.
		f.credits.On("AllocateSubscriptionCredits", ctx, userID, mock.Anything, mock.Anything,
			model.TransactionTypeSubscription, mock.Anything, "invoice:in_1").
			Return(balance, nil, nil)
		f.events.On("UpdateStatus", ctx, "evt_2", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_2", "invoice.paid", raw))

		assert.NoError(t, err)
		f.events.AssertExpectations(t)
	})

	t.Run("handler error marks failed and surfaces", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_3", "invoice.paid", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
			Return(nil, errors.New("connection refused"))
		f.events.On("UpdateStatus", ctx, "evt_3", model.WebhookStatusFailed, mock.Anything).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_3", "invoice.paid", raw))

		assert.Error(t, err)
		f.events.AssertExpectations(t)
	})

	t.Run("mark completed failure surfaces after mutation", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_4", "invoice.paid", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
			Return(&model.Profile{UserID: userID}, nil)
		f.subs.On("GetByStripeSubscriptionID", ctx, "sub_1").
			Return(&model.Subscription{StripeSubscriptionID: "sub_1", Plan: plan}, nil)
		balance := &model.UserCreditBalance{UserID: userID}
		f.credits.On("AllocateSubscriptionCredits", ctx, userID, mock.Anything, mock.Anything,
			model.TransactionTypeSubscription, mock.Anything, "invoice:in_1").
			Return(balance, nil, nil)
		f.events.On("UpdateStatus", ctx, "evt_4", model.WebhookStatusCompleted, (*string)(nil)).
			Return(errors.New("connection refused")).Times(3)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_4", "invoice.paid", raw))

		assert.Error(t, err)
		f.events.AssertExpectations(t)
	})

	t.Run("invoice without subscription completes without allocation", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_5", "invoice.paid", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.events.On("UpdateStatus", ctx, "evt_5", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_5", "invoice.paid", `{"id":"in_2","customer":{"id":"cus_1"}}`))

		assert.NoError(t, err)
		f.credits.AssertNotCalled(t, "AllocateSubscriptionCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("redelivery after a crashed delivery reprocesses the event", func(t *testing.T) {
		// A worker died after winning the claim, leaving the row in
		// processing with no terminal write. When Stripe redelivers, the
		// stale row is taken over and the allocation runs instead of being
		// acknowledged away as a duplicate.
		f := newProcessorFixture()
		stuck := &model.WebhookEvent{StripeEventID: "evt_6", Status: model.WebhookStatusProcessing}
		f.events.On("InsertIfAbsent", ctx, "evt_6", "invoice.paid", mock.Anything, mock.Anything).
			Return(false, stuck, nil)
		f.events.On("ReclaimEvent", ctx, "evt_6", mock.AnythingOfType("time.Time")).
			Return(true, nil)

		f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
			Return(&model.Profile{UserID: userID}, nil)
		f.subs.On("GetByStripeSubscriptionID", ctx, "sub_1").
			Return(&model.Subscription{StripeSubscriptionID: "sub_1", Plan: plan}, nil)

		balance := &model.UserCreditBalance{UserID: userID, SubscriptionCredits: decimal.NewFromInt(200)}
		tx := &model.CreditTransaction{Amount: decimal.NewFromInt(100), BalanceAfter: decimal.NewFromInt(200)}
		f.credits.On("AllocateSubscriptionCredits", ctx, userID,
			decimal.NewFromInt(100), mock.Anything,
			model.TransactionTypeSubscription, mock.Anything, "invoice:in_1").
			Return(balance, tx, nil)
		f.events.On("UpdateStatus", ctx, "evt_6", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_6", "invoice.paid", raw))

		assert.NoError(t, err)
		f.credits.AssertExpectations(t)
		f.events.AssertExpectations(t)
	})

	t.Run("redelivery after a handler failure retries the allocation", func(t *testing.T) {
		f := newProcessorFixture()
		failed := &model.WebhookEvent{StripeEventID: "evt_7", Status: model.WebhookStatusFailed}
		f.events.On("InsertIfAbsent", ctx, "evt_7", "invoice.paid", mock.Anything, mock.Anything).
			Return(false, failed, nil)
		f.events.On("ReclaimEvent", ctx, "evt_7", mock.AnythingOfType("time.Time")).
			Return(true, nil)

		f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
			Return(&model.Profile{UserID: userID}, nil)
		f.subs.On("GetByStripeSubscriptionID", ctx, "sub_1").
			Return(&model.Subscription{StripeSubscriptionID: "sub_1", Plan: plan}, nil)

		balance := &model.UserCreditBalance{UserID: userID, SubscriptionCredits: decimal.NewFromInt(100)}
		tx := &model.CreditTransaction{Amount: decimal.NewFromInt(100), BalanceAfter: decimal.NewFromInt(100)}
		f.credits.On("AllocateSubscriptionCredits", ctx, userID,
			decimal.NewFromInt(100), mock.Anything,
			model.TransactionTypeSubscription, mock.Anything, "invoice:in_1").
			Return(balance, tx, nil)
		f.events.On("UpdateStatus", ctx, "evt_7", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_7", "invoice.paid", raw))

		assert.NoError(t, err)
		f.credits.AssertExpectations(t)
		f.events.AssertExpectations(t)
	})
}

func TestWebhookProcessor_CheckoutCompleted(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("payment mode grants the credit pack", func(t *testing.T) {
		f := newProcessorFixture()
		raw := `{"id":"cs_1","mode":"payment","client_reference_id":"` + userID.String() + `","customer":{"id":"cus_1"},"customer_details":{"email":"jo@example.com"},"payment_intent":{"id":"pi_1"},"metadata":{"credits":"500"}}`

		f.events.On("InsertIfAbsent", ctx, "evt_1", "checkout.session.completed", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.profiles.On("LinkStripeCustomer", ctx, userID, "jo@example.com", "cus_1").
			Return(nil)

		balance := &model.UserCreditBalance{UserID: userID, PurchasedCredits: decimal.NewFromInt(500)}
		tx := &model.CreditTransaction{Amount: decimal.NewFromInt(500)}
		f.credits.On("AddPurchasedCredits", ctx, userID,
			decimal.NewFromInt(500), model.TransactionTypePurchase, mock.Anything, "pi:pi_1").
			Return(balance, tx, nil)
		f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "checkout.session.completed", raw))

		assert.NoError(t, err)
		f.credits.AssertExpectations(t)
		f.profiles.AssertExpectations(t)
	})

	t.Run("subscription mode seeds the local row", func(t *testing.T) {
		f := newProcessorFixture()
		raw := `{"id":"cs_2","mode":"subscription","client_reference_id":"` + userID.String() + `","customer":{"id":"cus_1"},"subscription":{"id":"sub_1"}}`

		f.events.On("InsertIfAbsent", ctx, "evt_2", "checkout.session.completed", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.profiles.On("LinkStripeCustomer", ctx, userID, "", "cus_1").
			Return(nil)

		fresh := &stripe.Subscription{
			ID:                 "sub_1",
			Customer:           &stripe.Customer{ID: "cus_1"},
			Status:             stripe.SubscriptionStatusActive,
			CurrentPeriodStart: 1700000000,
			CurrentPeriodEnd:   1702592000,
			Items: &stripe.SubscriptionItemList{
				Data: []*stripe.SubscriptionItem{{
					ID:    "si_1",
					Price: &stripe.Price{ID: "price_starter"},
				}},
			},
		}
		f.gateway.On("GetSubscription", ctx, "sub_1").Return(fresh, nil)

		plan := &model.PaymentPlan{ID: 1, StripePriceID: "price_starter", Tier: "starter", Type: model.PlanTypeSubscription, CreditsPerMonth: 100}
		f.plans.On("GetByPriceID", ctx, "price_starter").Return(plan, nil)
		f.subs.On("Upsert", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
			return sub.StripeSubscriptionID == "sub_1" && sub.UserID == userID && sub.StripePriceID == "price_starter"
		})).Return(nil)
		f.profiles.On("UpdateTier", ctx, userID, "starter").Return(nil)
		f.credits.On("AllocateSubscriptionCredits", ctx, userID, decimal.Zero, mock.Anything,
			model.TransactionTypeSubscription, "", "").
			Return(&model.UserCreditBalance{UserID: userID}, nil, nil)
		f.events.On("UpdateStatus", ctx, "evt_2", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_2", "checkout.session.completed", raw))

		assert.NoError(t, err)
		f.subs.AssertExpectations(t)
		f.gateway.AssertExpectations(t)
	})

	t.Run("missing user reference marks failed", func(t *testing.T) {
		f := newProcessorFixture()
		raw := `{"id":"cs_3","mode":"payment"}`

		f.events.On("InsertIfAbsent", ctx, "evt_3", "checkout.session.completed", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.events.On("UpdateStatus", ctx, "evt_3", model.WebhookStatusFailed, mock.Anything).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_3", "checkout.session.completed", raw))

		assert.Error(t, err)
	})
}

func TestWebhookProcessor_SubscriptionUpdated(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	raw := `{"id":"sub_1","customer":{"id":"cus_1"},"status":"active","current_period_start":1700000000,"current_period_end":1702592000,"items":{"data":[{"id":"si_1","price":{"id":"price_pro"}}]}}`

	f := newProcessorFixture()
	f.events.On("InsertIfAbsent", ctx, "evt_1", "customer.subscription.updated", mock.Anything, mock.Anything).
		Return(true, nil, nil)
	f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
		Return(&model.Profile{UserID: userID}, nil)

	plan := &model.PaymentPlan{ID: 2, StripePriceID: "price_pro", Tier: "pro", Type: model.PlanTypeSubscription, CreditsPerMonth: 500}
	f.plans.On("GetByPriceID", ctx, "price_pro").Return(plan, nil)
	f.subs.On("Upsert", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
		return sub.StripeSubscriptionID == "sub_1" && sub.Status == model.SubscriptionStatusActive
	})).Return(nil)
	f.profiles.On("UpdateTier", ctx, userID, "pro").Return(nil)

	// Retroactive cap at the new tier ceiling: zero amount, cap 3000.
	f.credits.On("AllocateSubscriptionCredits", ctx, userID, decimal.Zero,
		mock.MatchedBy(func(cap *decimal.Decimal) bool {
			return cap != nil && cap.Equal(decimal.NewFromInt(3000))
		}),
		model.TransactionTypeSubscription, "", "").
		Return(&model.UserCreditBalance{UserID: userID}, nil, nil)
	f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
		Return(nil)

	err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "customer.subscription.updated", raw))

	assert.NoError(t, err)
	f.credits.AssertExpectations(t)
	f.profiles.AssertExpectations(t)
}

func TestWebhookProcessor_SubscriptionPastDue(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	raw := `{"id":"sub_1","customer":{"id":"cus_1"},"status":"past_due","current_period_start":1700000000,"current_period_end":1702592000,"items":{"data":[{"id":"si_1","price":{"id":"price_pro"}}]}}`

	f := newProcessorFixture()
	f.events.On("InsertIfAbsent", ctx, "evt_1", "customer.subscription.updated", mock.Anything, mock.Anything).
		Return(true, nil, nil)
	f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
		Return(&model.Profile{UserID: userID, Tier: "pro"}, nil)

	plan := &model.PaymentPlan{ID: 2, StripePriceID: "price_pro", Tier: "pro", Type: model.PlanTypeSubscription, CreditsPerMonth: 500}
	f.plans.On("GetByPriceID", ctx, "price_pro").Return(plan, nil)
	f.subs.On("Upsert", ctx, mock.MatchedBy(func(sub *model.Subscription) bool {
		return sub.StripeSubscriptionID == "sub_1" && sub.Status == model.SubscriptionStatusPastDue
	})).Return(nil)

	// The subscription row keeps the past_due status, but the paid tier
	// label comes off until payment recovers.
	f.profiles.On("UpdateTier", ctx, userID, "free").Return(nil)

	f.credits.On("AllocateSubscriptionCredits", ctx, userID, decimal.Zero,
		mock.MatchedBy(func(cap *decimal.Decimal) bool {
			return cap != nil && cap.Equal(decimal.NewFromInt(3000))
		}),
		model.TransactionTypeSubscription, "", "").
		Return(&model.UserCreditBalance{UserID: userID}, nil, nil)
	f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
		Return(nil)

	err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "customer.subscription.updated", raw))

	assert.NoError(t, err)
	f.profiles.AssertExpectations(t)
	f.profiles.AssertNotCalled(t, "UpdateTier", ctx, userID, "pro")
}

func TestWebhookProcessor_SubscriptionDeleted(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	raw := `{"id":"sub_1","customer":{"id":"cus_1"},"status":"canceled"}`

	f := newProcessorFixture()
	f.events.On("InsertIfAbsent", ctx, "evt_1", "customer.subscription.deleted", mock.Anything, mock.Anything).
		Return(true, nil, nil)
	f.subs.On("MarkCanceled", ctx, "sub_1").Return(nil)
	f.profiles.On("GetByStripeCustomerID", ctx, "cus_1").
		Return(&model.Profile{UserID: userID, Tier: "pro"}, nil)
	f.profiles.On("UpdateTier", ctx, userID, "free").Return(nil)
	f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
		Return(nil)

	err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "customer.subscription.deleted", raw))

	assert.NoError(t, err)
	f.subs.AssertExpectations(t)
	f.profiles.AssertExpectations(t)
	// Credits persist after cancellation.
	f.credits.AssertNotCalled(t, "DebitPurchasedCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookProcessor_ChargeDisputeCreated(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	raw := `{"id":"dp_1","payment_intent":{"id":"pi_1"}}`

	t.Run("claws back the disputed purchase", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_1", "charge.dispute.created", mock.Anything, mock.Anything).
			Return(true, nil, nil)

		purchase := &model.CreditTransaction{
			UserID:          userID,
			TransactionType: model.TransactionTypePurchase,
			Amount:          decimal.NewFromInt(500),
		}
		f.credits.On("GetTransactionByReference", ctx, "pi:pi_1").Return(purchase, nil)

		balance := &model.UserCreditBalance{UserID: userID}
		tx := &model.CreditTransaction{Amount: decimal.NewFromInt(-500)}
		f.credits.On("DebitPurchasedCredits", ctx, userID,
			decimal.NewFromInt(500), model.TransactionTypeRefund, mock.Anything, "dispute:dp_1").
			Return(balance, tx, nil)
		f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "charge.dispute.created", raw))

		assert.NoError(t, err)
		f.credits.AssertExpectations(t)
	})

	t.Run("dispute without a recorded purchase completes quietly", func(t *testing.T) {
		f := newProcessorFixture()
		f.events.On("InsertIfAbsent", ctx, "evt_2", "charge.dispute.created", mock.Anything, mock.Anything).
			Return(true, nil, nil)
		f.credits.On("GetTransactionByReference", ctx, "pi:pi_1").Return(nil, nil)
		f.events.On("UpdateStatus", ctx, "evt_2", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		err := f.proc.ProcessEvent(ctx, stripeEvent("evt_2", "charge.dispute.created", raw))

		assert.NoError(t, err)
		f.credits.AssertNotCalled(t, "DebitPurchasedCredits", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWebhookProcessor_InvoicePaymentFailed(t *testing.T) {
	ctx := context.Background()
	raw := `{"id":"in_1","customer":{"id":"cus_1"}}`

	f := newProcessorFixture()
	f.events.On("InsertIfAbsent", ctx, "evt_1", "invoice.payment_failed", mock.Anything, mock.Anything).
		Return(true, nil, nil)
	f.events.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
		Return(nil)

	err := f.proc.ProcessEvent(ctx, stripeEvent("evt_1", "invoice.payment_failed", raw))

	assert.NoError(t, err)
	// Record only: no entitlement or credit mutation.
	f.subs.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.profiles.AssertNotCalled(t, "UpdateTier", mock.Anything, mock.Anything, mock.Anything)
}
