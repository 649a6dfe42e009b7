package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jonit-dev/pixelperfect-sub009/internal/adapter/repository"
	domainRepo "github.com/jonit-dev/pixelperfect-sub009/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Profile      domainRepo.ProfileRepository
	Subscription domainRepo.SubscriptionRepository
	Plan         domainRepo.PlanRepository
	Credit       domainRepo.CreditRepository
	WebhookEvent domainRepo.WebhookEventRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Profile:      repository.NewProfileRepository(db, logger),
		Subscription: repository.NewSubscriptionRepository(db, logger),
		Plan:         repository.NewPlanRepository(db, logger),
		Credit:       repository.NewCreditRepository(db, logger),
		WebhookEvent: repository.NewWebhookEventRepository(db, logger),
	}
}
