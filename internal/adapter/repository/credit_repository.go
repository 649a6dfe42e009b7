package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domainErrors "github.com/jonit-dev/pixelperfect-sub009/internal/domain/errors"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/ledger"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	domainRepo "github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

// creditRepository implements the CreditRepository interface
type creditRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCreditRepository creates a new credit repository instance
func NewCreditRepository(db *gorm.DB, logger *zap.Logger) domainRepo.CreditRepository {
	return &creditRepository{
		db:     db,
		logger: logger,
	}
}

// GetBalance retrieves the current credit pools for a user
func (r *creditRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*model.UserCreditBalance, error) {
	var balance model.UserCreditBalance

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&balance).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.UserCreditBalance{
				UserID:              userID,
				SubscriptionCredits: decimal.Zero,
				PurchasedCredits:    decimal.Zero,
			}, nil
		}
		r.logger.Error("Failed to get credit balance",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get credit balance: %w", err)
	}

	return &balance, nil
}

// lockBalance locks (or creates) the balance row inside tx.
func lockBalance(tx *gorm.DB, userID uuid.UUID) (*model.UserCreditBalance, error) {
	var balance model.UserCreditBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		FirstOrCreate(&balance, model.UserCreditBalance{
			UserID:              userID,
			SubscriptionCredits: decimal.Zero,
			PurchasedCredits:    decimal.Zero,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}
	return &balance, nil
}

// existingByReference returns the stored transaction for referenceID, if any.
func existingByReference(tx *gorm.DB, referenceID string) (*model.CreditTransaction, error) {
	if referenceID == "" {
		return nil, nil
	}
	var existing model.CreditTransaction
	err := tx.Where("reference_id = ?", referenceID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("failed to check reference id: %w", err)
}

// AllocateSubscriptionCredits applies an allocation to the subscription pool
// under the tier's rollover cap. Amount zero only enforces the cap.
func (r *creditRepository) AllocateSubscriptionCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, maxRollover *decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	var balance *model.UserCreditBalance
	var transaction *model.CreditTransaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := existingByReference(tx, referenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			// Already applied by an earlier delivery; a nil transaction
			// tells the caller nothing new was written.
			balance, err = r.fetchBalance(tx, userID)
			return err
		}

		current, err := lockBalance(tx, userID)
		if err != nil {
			return err
		}

		res := ledger.CalculateBalanceWithExpiration(current.SubscriptionCredits, amount, ledger.ExpirationNever, maxRollover)
		current.SubscriptionCredits = res.NewBalance

		if !amount.IsZero() {
			transaction = &model.CreditTransaction{
				UserID:          userID,
				TransactionType: txType,
				Amount:          amount,
				BalanceAfter:    current.Total(),
				Description:     description,
			}
			if referenceID != "" {
				transaction.ReferenceID = &referenceID
			}
			if err := tx.Create(transaction).Error; err != nil {
				return fmt.Errorf("failed to create transaction: %w", err)
			}
			current.LastTransactionAt = transaction.CreatedAt
		}

		if err := tx.Save(current).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		balance = current
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to allocate subscription credits",
			zap.String("user_id", userID.String()),
			zap.String("amount", amount.String()),
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to allocate subscription credits: %w", err)
	}

	r.logger.Info("Subscription credits updated",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
		zap.String("subscription_credits", balance.SubscriptionCredits.String()),
		zap.String("reference_id", referenceID))

	return balance, transaction, nil
}

// AddPurchasedCredits adds a credit pack or grant to the purchased pool.
func (r *creditRepository) AddPurchasedCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	return r.mutatePurchased(ctx, userID, amount, txType, description, referenceID, false)
}

// DebitPurchasedCredits removes up to amount from the purchased pool,
// flooring at zero.
func (r *creditRepository) DebitPurchasedCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, txType model.TransactionType, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	return r.mutatePurchased(ctx, userID, amount.Neg(), txType, description, referenceID, true)
}

// AdjustCredits applies a signed support correction to the purchased pool.
func (r *creditRepository) AdjustCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	return r.mutatePurchased(ctx, userID, amount, model.TransactionTypeAdjustment, description, referenceID, true)
}

func (r *creditRepository) mutatePurchased(ctx context.Context, userID uuid.UUID, signedAmount decimal.Decimal, txType model.TransactionType, description, referenceID string, floorAtZero bool) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	var balance *model.UserCreditBalance
	var transaction *model.CreditTransaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := existingByReference(tx, referenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			balance, err = r.fetchBalance(tx, userID)
			return err
		}

		current, err := lockBalance(tx, userID)
		if err != nil {
			return err
		}

		newPool := current.PurchasedCredits.Add(signedAmount)
		applied := signedAmount
		if floorAtZero && newPool.IsNegative() {
			// Clamp the debit to what the pool can absorb.
			applied = current.PurchasedCredits.Neg()
			newPool = decimal.Zero
		}
		current.PurchasedCredits = newPool

		transaction = &model.CreditTransaction{
			UserID:          userID,
			TransactionType: txType,
			Amount:          applied,
			BalanceAfter:    current.Total(),
			Description:     description,
		}
		if referenceID != "" {
			transaction.ReferenceID = &referenceID
		}
		if err := tx.Create(transaction).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		current.LastTransactionAt = transaction.CreatedAt
		if err := tx.Save(current).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		balance = current
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to mutate purchased credits",
			zap.String("user_id", userID.String()),
			zap.String("amount", signedAmount.String()),
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to mutate purchased credits: %w", err)
	}

	r.logger.Info("Purchased credits updated",
		zap.String("user_id", userID.String()),
		zap.String("amount", signedAmount.String()),
		zap.String("purchased_credits", balance.PurchasedCredits.String()))

	return balance, transaction, nil
}

// UseCredits debits a usage charge: subscription credits first, purchased
// credits for the remainder.
func (r *creditRepository) UseCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, featureName, description string) (*model.UserCreditBalance, *model.CreditTransaction, error) {
	var balance *model.UserCreditBalance
	var transaction *model.CreditTransaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockBalance(tx, userID)
		if err != nil {
			return err
		}

		if current.Total().LessThan(amount) {
			return domainErrors.NewInsufficientBalanceError(amount, current.Total())
		}

		fromSubscription := decimal.Min(current.SubscriptionCredits, amount)
		fromPurchased := amount.Sub(fromSubscription)

		current.SubscriptionCredits = current.SubscriptionCredits.Sub(fromSubscription)
		current.PurchasedCredits = current.PurchasedCredits.Sub(fromPurchased)

		transaction = &model.CreditTransaction{
			UserID:          userID,
			TransactionType: model.TransactionTypeUsage,
			Amount:          amount.Neg(),
			BalanceAfter:    current.Total(),
			Description:     description,
			FeatureName:     &featureName,
		}
		if err := tx.Create(transaction).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}

		current.LastTransactionAt = transaction.CreatedAt
		if err := tx.Save(current).Error; err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		balance = current
		return nil
	})

	if err != nil {
		var insufficient *domainErrors.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			return nil, nil, insufficient
		}
		r.logger.Error("Failed to use credits",
			zap.String("user_id", userID.String()),
			zap.String("amount", amount.String()),
			zap.String("feature", featureName),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to use credits: %w", err)
	}

	r.logger.Info("Credits used",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
		zap.String("feature", featureName),
		zap.String("balance_after", balance.Total().String()))

	return balance, transaction, nil
}

// GetTransactionByReference retrieves a transaction by its reference ID
func (r *creditRepository) GetTransactionByReference(ctx context.Context, referenceID string) (*model.CreditTransaction, error) {
	var transaction model.CreditTransaction

	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		First(&transaction).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction by reference",
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &transaction, nil
}

// GetTransactionHistory retrieves transaction history for a user
func (r *creditRepository) GetTransactionHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error) {
	var transactions []*model.CreditTransaction

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&transactions).Error; err != nil {
		r.logger.Error("Failed to get transaction history",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}

	return transactions, nil
}

func (r *creditRepository) fetchBalance(tx *gorm.DB, userID uuid.UUID) (*model.UserCreditBalance, error) {
	var balance model.UserCreditBalance
	err := tx.Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.UserCreditBalance{
				UserID:              userID,
				SubscriptionCredits: decimal.Zero,
				PurchasedCredits:    decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return &balance, nil
}
