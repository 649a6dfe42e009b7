package usecase_test

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v79"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) InsertIfAbsent(ctx context.Context, eventID, eventType string, payload json.RawMessage, stripeCreatedAt *time.Time) (bool, *model.WebhookEvent, error) {
	args := m.Called(ctx, eventID, eventType, payload, stripeCreatedAt)
	var existing *model.WebhookEvent
	if args.Get(1) != nil {
		existing = args.Get(1).(*model.WebhookEvent)
	}
	return args.Bool(0), existing, args.Error(2)
}

func (m *MockWebhookEventRepository) ReclaimEvent(ctx context.Context, eventID string, staleBefore time.Time) (bool, error) {
	args := m.Called(ctx, eventID, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookEventRepository) UpdateStatus(ctx context.Context, eventID string, status model.WebhookStatus, errorMessage *string) error {
	args := m.Called(ctx, eventID, status, errorMessage)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookEvent), args.Error(1)
}

// MockCreditRepository is a mock implementation of CreditRepository
type MockCreditRepository struct {
	mock.Mock
}

func creditReturns(args mock.Arguments) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	var balance *model.UserCreditBalance
	if args.Get(0) != nil {
		balance = args.Get(0).(*model.UserCreditBalance)
	}
	var tx *model.CreditTransaction
	if args.Get(1) != nil {
		tx = args.Get(1).(*model.CreditTransaction)
	}
	return balance, tx, args.Error(2)
}

func (m *MockCreditRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*model.UserCreditBalance, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserCreditBalance), args.Error(1)
}

func (m *MockCreditRepository) AllocateSubscriptionCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, maxRollover *decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, maxRollover, txType, description, referenceID)
	return creditReturns(args)
}

func (m *MockCreditRepository) AddPurchasedCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, txType, description, referenceID)
	return creditReturns(args)
}

func (m *MockCreditRepository) DebitPurchasedCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, txType, description, referenceID)
	return creditReturns(args)
}

func (m *MockCreditRepository) UseCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, featureName, description string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, featureName, description)
	return creditReturns(args)
}

func (m *MockCreditRepository) AdjustCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	args := m.Called(ctx, userID, amount, description, referenceID)
	return creditReturns(args)
}

func (m *MockCreditRepository) GetTransactionByReference(ctx context.Context, referenceID string) (*model.CreditTransaction, error) {
	args := m.Called(ctx, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditTransaction), args.Error(1)
}

func (m *MockCreditRepository) GetTransactionHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CreditTransaction), args.Error(1)
}

// MockSubscriptionRepository is a mock implementation of SubscriptionRepository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetCurrentByUserID(ctx context.Context, userID uuid.UUID) (*model.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	args := m.Called(ctx, stripeSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Upsert(ctx context.Context, sub *model.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) MarkCanceled(ctx context.Context, stripeSubscriptionID string) error {
	args := m.Called(ctx, stripeSubscriptionID)
	return args.Error(0)
}

// MockProfileRepository is a mock implementation of ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileRepository) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*model.Profile, error) {
	args := m.Called(ctx, stripeCustomerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Profile), args.Error(1)
}

func (m *MockProfileRepository) UpdateTier(ctx context.Context, userID uuid.UUID, tier string) error {
	args := m.Called(ctx, userID, tier)
	return args.Error(0)
}

func (m *MockProfileRepository) LinkStripeCustomer(ctx context.Context, userID uuid.UUID, email, stripeCustomerID string) error {
	args := m.Called(ctx, userID, email, stripeCustomerID)
	return args.Error(0)
}

// MockPlanRepository is a mock implementation of PlanRepository
type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) GetByPriceID(ctx context.Context, stripePriceID string) (*model.PaymentPlan, error) {
	args := m.Called(ctx, stripePriceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentPlan), args.Error(1)
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id int64) (*model.PaymentPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentPlan), args.Error(1)
}

func (m *MockPlanRepository) GetActivePlans(ctx context.Context) ([]*model.PaymentPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PaymentPlan), args.Error(1)
}

// MockStripeGateway is a mock implementation of StripeGateway
type MockStripeGateway struct {
	mock.Mock
}

func (m *MockStripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *MockStripeGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, itemID, priceID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID, itemID, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

func (m *MockStripeGateway) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.Subscription), args.Error(1)
}

// MockPublisher is a mock implementation of the messaging client
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func (m *MockPublisher) Subscribe(ctx context.Context, channel string) (<-chan messaging.Message, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan messaging.Message), args.Error(1)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
