package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile stores the billing-facing view of a user account: the tier label
// shown in the product UI and the Stripe customer linkage used to resolve
// inbound webhook events to a user.
type Profile struct {
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Email            string    `gorm:"size:255" json:"email"`
	Tier             string    `gorm:"size:50;not null;default:'free'" json:"tier"`
	StripeCustomerID string    `gorm:"column:stripe_customer_id;unique;size:100;index" json:"stripe_customer_id"`
	CreatedAt        time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt        time.Time `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (Profile) TableName() string {
	return "profiles"
}
