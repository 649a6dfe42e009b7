package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	// Custom types must exist before auto-migrate references them
	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	// Auto-migrate all models
	err := db.AutoMigrate(
		&model.Profile{},
		&model.PaymentPlan{},
		&model.Subscription{},
		&model.UserCreditBalance{},
		&model.CreditTransaction{},
		&model.WebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	// Create custom indexes and constraints
	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomTypes creates the Postgres enum types backing the model
// fields. Enum values are appended when the type already exists so upgrades
// stay additive.
func createCustomTypes(db *gorm.DB) error {
	var exists bool

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'subscription_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE subscription_status AS ENUM ('active', 'trialing', 'past_due', 'canceled', 'inactive')`).Error; err != nil {
			return err
		}
	}

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'transaction_type')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE transaction_type AS ENUM ('purchase', 'subscription', 'usage', 'refund', 'bonus', 'plan_upgrade', 'adjustment')`).Error; err != nil {
			return err
		}
	}

	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'webhook_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE webhook_status AS ENUM ('processing', 'completed', 'failed', 'unrecoverable')`).Error; err != nil {
			return err
		}
	}

	return nil
}

// createCustomIndexes creates the partial indexes GORM cannot express.
func createCustomIndexes(db *gorm.DB) error {
	// Reference ids are unique when present: the credit allocation
	// idempotency guarantee rests on this index.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS uniq_credit_transactions_reference ON credit_transactions (reference_id) WHERE reference_id IS NOT NULL`).Error; err != nil {
		return err
	}

	// Events stuck in processing or failed are what an operator looks for.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_open ON webhook_events (created_at) WHERE status IN ('processing', 'failed')`).Error; err != nil {
		return err
	}

	return nil
}
