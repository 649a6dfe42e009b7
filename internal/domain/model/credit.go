package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the type of credit transaction
type TransactionType string

const (
	TransactionTypePurchase     TransactionType = "purchase"
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeUsage        TransactionType = "usage"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypeBonus        TransactionType = "bonus"
	TransactionTypePlanUpgrade  TransactionType = "plan_upgrade"
	TransactionTypeAdjustment   TransactionType = "adjustment"
)

// Scan implements sql.Scanner interface
func (t *TransactionType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*t = TransactionType(v)
	case []byte:
		*t = TransactionType(v)
	default:
		return nil
	}
	return nil
}

// Value implements driver.Valuer interface
func (t TransactionType) Value() (driver.Value, error) {
	return string(t), nil
}

// CreditTransaction is the append-only audit record for every credit
// mutation. Rows are never updated or deleted; the sum of a user's
// transactions should reconcile against the current balance.
type CreditTransaction struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index:idx_credit_transactions_user_created" json:"user_id"`
	SubscriptionID  *int64          `gorm:"index" json:"subscription_id,omitempty"`
	TransactionType TransactionType `gorm:"type:transaction_type;not null" json:"transaction_type"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	BalanceAfter    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance_after"`
	Description     string          `gorm:"not null" json:"description"`
	FeatureName     *string         `gorm:"size:100" json:"feature_name,omitempty"`
	ReferenceID     *string         `gorm:"size:200;index:idx_credit_transactions_reference,where:reference_id IS NOT NULL" json:"reference_id,omitempty"`
	CreatedAt       time.Time       `gorm:"default:now();index:idx_credit_transactions_user_created" json:"created_at"`
}

// TableName specifies the table name for GORM
func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

// UserCreditBalance holds the two credit pools for a user. Subscription
// credits are subject to the tier rollover cap; purchased credits are not.
// The displayed balance is always the sum of both pools.
type UserCreditBalance struct {
	UserID              uuid.UUID       `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	SubscriptionCredits decimal.Decimal `gorm:"type:decimal(15,2)" json:"subscription_credits"`
	PurchasedCredits    decimal.Decimal `gorm:"type:decimal(15,2)" json:"purchased_credits"`
	LastTransactionAt   time.Time       `json:"last_transaction_at"`
}

// Total returns the displayed balance: the sum of both pools.
func (b *UserCreditBalance) Total() decimal.Decimal {
	return b.SubscriptionCredits.Add(b.PurchasedCredits)
}

// TableName specifies the table name for GORM
func (UserCreditBalance) TableName() string {
	return "user_credit_balances"
}
