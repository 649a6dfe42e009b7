package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
)

// CreditRepository defines atomic operations on the credit pools and the
// append-only transaction log. Every mutation runs in a single database
// transaction with the balance row locked, and is idempotent per reference
// id where one is supplied.
type CreditRepository interface {
	// GetBalance returns the user's pools, zero-valued when no row exists yet.
	GetBalance(ctx context.Context, userID uuid.UUID) (*model.UserCreditBalance, error)

	// AllocateSubscriptionCredits adds amount to the subscription pool,
	// capping the result at maxRollover when non-nil. A nil maxRollover
	// means uncapped. When amount is zero the call only enforces the cap
	// (retroactive cap on downgrade) and writes no transaction row. A nil
	// returned transaction means nothing new was written, either because
	// the reference id was already applied or the amount was zero.
	AllocateSubscriptionCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, maxRollover *decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error)

	// AddPurchasedCredits adds amount to the purchased pool (credit packs,
	// admin grants). The purchased pool has no rollover cap.
	AddPurchasedCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error)

	// DebitPurchasedCredits removes up to amount from the purchased pool,
	// flooring at zero (dispute clawbacks must not drive the pool negative).
	DebitPurchasedCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error)

	// UseCredits debits a usage charge, consuming subscription credits first
	// and purchased credits for the remainder. Returns
	// InsufficientBalanceError when the combined pools cannot cover amount.
	UseCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, featureName, description string) (*model.UserCreditBalance, *model.CreditTransaction, error)

	// AdjustCredits applies a signed admin correction to the purchased pool,
	// floored at zero, always writing an audit transaction.
	AdjustCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error)

	// GetTransactionByReference returns the transaction recorded under the
	// reference id, or nil when none exists.
	GetTransactionByReference(ctx context.Context, referenceID string) (*model.CreditTransaction, error)

	// GetTransactionHistory returns the user's transactions, newest first.
	GetTransactionHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error)
}
