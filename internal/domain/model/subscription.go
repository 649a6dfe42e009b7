package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusInactive
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsEntitling reports whether the status grants access to paid features.
// Only active and trialing count; everything else is treated as inactive.
func (s SubscriptionStatus) IsEntitling() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// Subscription is the local cache of a user's Stripe subscription. Stripe is
// the source of truth for subscription state; this row exists so request
// paths can resolve the current tier without a provider round trip. The
// credit pools, by contrast, live only here.
type Subscription struct {
	ID                   int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID               uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	StripeCustomerID     string             `gorm:"not null;size:100;index" json:"stripe_customer_id"`
	StripeSubscriptionID string             `gorm:"unique;not null;size:100" json:"stripe_subscription_id"`
	StripeItemID         string             `gorm:"size:100" json:"stripe_item_id"`
	StripePriceID        string             `gorm:"size:100;index" json:"stripe_price_id"`
	PlanID               *int64             `gorm:"index" json:"plan_id,omitempty"`
	Status               SubscriptionStatus `gorm:"type:subscription_status;not null;default:'active'" json:"status"`
	CurrentPeriodStart   time.Time          `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `gorm:"not null" json:"current_period_end"`
	CancelAtPeriodEnd    bool               `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty"`
	RawSubscriptionData  JSONB              `gorm:"type:jsonb" json:"raw_subscription_data,omitempty"`
	CreatedAt            time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt            time.Time          `gorm:"default:now()" json:"updated_at"`

	// Relations
	Plan *PaymentPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}
