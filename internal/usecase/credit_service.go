package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// BalanceResponse is the credit balance as shown to the user: both pools
// plus their sum.
type BalanceResponse struct {
	SubscriptionCredits string `json:"subscription_credits"`
	PurchasedCredits    string `json:"purchased_credits"`
	Total               string `json:"total"`
}

// TransactionDTO is a single history entry.
type TransactionDTO struct {
	TransactionType string `json:"transaction_type"`
	Amount          string `json:"amount"`
	BalanceAfter    string `json:"balance_after"`
	Description     string `json:"description"`
	FeatureName     string `json:"feature_name,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// TransactionListResponse is a paginated history page.
type TransactionListResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	Limit        int              `json:"limit"`
	Offset       int              `json:"offset"`
	HasMore      bool             `json:"has_more"`
}

// CreditService exposes the credit pools to request handlers. All mutation
// goes through the repository's locked transactions; this layer adds
// defaults, DTO mapping and change notifications.
type CreditService struct {
	credits   repository.CreditRepository
	publisher messaging.RedisClient
	logger    *zap.Logger
}

// NewCreditService creates a new credit service
func NewCreditService(credits repository.CreditRepository, publisher messaging.RedisClient, logger *zap.Logger) *CreditService {
	return &CreditService{
		credits:   credits,
		publisher: publisher,
		logger:    logger,
	}
}

// GetBalance returns the user's pools, zero-valued when the user has never
// held credits.
func (s *CreditService) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceResponse, error) {
	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toBalanceResponse(balance), nil
}

// UseCredits debits an upscale job's cost: subscription pool first,
// purchased pool for the remainder. Returns InsufficientBalanceError when
// the combined pools cannot cover the amount.
func (s *CreditService) UseCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, featureName, description string) (*BalanceResponse, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("usage amount must be positive, got %s", amount)
	}

	balance, tx, err := s.credits.UseCredits(ctx, userID, amount, featureName, description)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Debited credits",
		zap.String("user_id", userID.String()),
		zap.String("feature", featureName),
		zap.String("amount", amount.String()),
		zap.String("balance_after", tx.BalanceAfter.String()))

	publishCreditsChanged(ctx, s.publisher, s.logger, userID, balance.Total().String())
	return toBalanceResponse(balance), nil
}

// AdjustCredits applies a signed support correction to the purchased pool,
// floored at zero. Every adjustment writes an audit transaction naming the
// actor; there is no path around the ledger.
func (s *CreditService) AdjustCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, reason, actor string) (*BalanceResponse, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("adjustment amount must be non-zero")
	}
	if reason == "" {
		return nil, fmt.Errorf("adjustment reason is required")
	}

	description := fmt.Sprintf("%s (by %s)", reason, actor)
	referenceID := "adjust:" + uuid.NewString()

	balance, tx, err := s.credits.AdjustCredits(ctx, userID, amount, description, referenceID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Adjusted credits",
		zap.String("user_id", userID.String()),
		zap.String("actor", actor),
		zap.String("amount", amount.String()),
		zap.String("balance_after", tx.BalanceAfter.String()))

	publishCreditsChanged(ctx, s.publisher, s.logger, userID, balance.Total().String())
	return toBalanceResponse(balance), nil
}

// GetTransactionHistory returns a page of the user's transactions, newest
// first.
func (s *CreditService) GetTransactionHistory(ctx context.Context, userID uuid.UUID, limit, offset int) (*TransactionListResponse, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	// Fetch one extra row to detect whether another page exists.
	transactions, err := s.credits.GetTransactionHistory(ctx, userID, limit+1, offset)
	if err != nil {
		return nil, err
	}

	hasMore := len(transactions) > limit
	if hasMore {
		transactions = transactions[:limit]
	}

	dtos := make([]TransactionDTO, len(transactions))
	for i, tx := range transactions {
		dto := TransactionDTO{
			TransactionType: string(tx.TransactionType),
			Amount:          tx.Amount.String(),
			BalanceAfter:    tx.BalanceAfter.String(),
			Description:     tx.Description,
			CreatedAt:       tx.CreatedAt.UTC().Format(time.RFC3339),
		}
		if tx.FeatureName != nil {
			dto.FeatureName = *tx.FeatureName
		}
		dtos[i] = dto
	}

	return &TransactionListResponse{
		Transactions: dtos,
		Limit:        limit,
		Offset:       offset,
		HasMore:      hasMore,
	}, nil
}

func toBalanceResponse(balance *model.UserCreditBalance) *BalanceResponse {
	return &BalanceResponse{
		SubscriptionCredits: balance.SubscriptionCredits.String(),
		PurchasedCredits:    balance.PurchasedCredits.String(),
		Total:               balance.Total().String(),
	}
}
