package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RolloverMonths is how many monthly allocations a subscription pool may
// accumulate before the rollover cap kicks in.
const RolloverMonths = 6

// Plan type constants
const (
	PlanTypeSubscription = "subscription"
	PlanTypeCreditPack   = "credit_pack"
)

// PaymentPlan represents a purchasable tier (subscription) or a one-time
// credit pack, keyed by its Stripe price ID.
type PaymentPlan struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StripePriceID   string    `gorm:"column:stripe_price_id;unique;not null;size:100" json:"stripe_price_id"`
	StripeProductID string    `gorm:"column:stripe_product_id;not null;size:100" json:"stripe_product_id"`
	DisplayName     string    `gorm:"not null;size:200" json:"display_name"`
	Tier            string    `gorm:"not null;size:50;default:'free'" json:"tier"`
	Type            string    `gorm:"not null;size:20;default:'subscription'" json:"type"`
	CreditsPerMonth int       `gorm:"not null" json:"credits_per_month"`
	SortOrder       int       `gorm:"default:0" json:"sort_order"`
	IsActive        bool      `gorm:"default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt       time.Time `gorm:"default:now()" json:"updated_at"`
}

// MaxRollover returns the rollover ceiling for the subscription credit pool
// on this plan: six months worth of allocations.
func (p *PaymentPlan) MaxRollover() decimal.Decimal {
	return decimal.NewFromInt(int64(p.CreditsPerMonth * RolloverMonths))
}

// MonthlyCredits returns the monthly allocation as a decimal amount.
func (p *PaymentPlan) MonthlyCredits() decimal.Decimal {
	return decimal.NewFromInt(int64(p.CreditsPerMonth))
}

// TableName specifies the table name for GORM
func (PaymentPlan) TableName() string {
	return "payment_plans"
}
