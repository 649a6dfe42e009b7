package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	handlers "github.com/jonit-dev/pixelperfect-sub009/internal/adapter/handler/http"
	"github.com/jonit-dev/pixelperfect-sub009/internal/config"
	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/gateway"
	"github.com/jonit-dev/pixelperfect-sub009/internal/infrastructure/database"
	"github.com/jonit-dev/pixelperfect-sub009/internal/middleware/auth"
	"github.com/jonit-dev/pixelperfect-sub009/internal/usecase"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/logger"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

type Server struct {
	config    *config.Config
	logger    *zap.Logger
	echo      *echo.Echo
	repos     *database.Repositories
	stripe    gateway.StripeGateway
	publisher messaging.RedisClient
}

func NewServer(
	cfg *config.Config,
	log *zap.Logger,
	repos *database.Repositories,
	stripeGateway gateway.StripeGateway,
	publisher messaging.RedisClient,
) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(logger.NewEchoRequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	return &Server{
		config:    cfg,
		logger:    log,
		echo:      e,
		repos:     repos,
		stripe:    stripeGateway,
		publisher: publisher,
	}
}

func (s *Server) Start() error {
	// A placeholder webhook secret in production would accept forged
	// deliveries. Refuse to start.
	if err := usecase.ValidateWebhookSecret(s.config.Service.StripeWebhookSecret, s.config.Service.Environment); err != nil {
		return fmt.Errorf("webhook configuration: %w", err)
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Usecases
	idempotency := usecase.NewIdempotencyService(s.repos.WebhookEvent, s.logger)
	processor := usecase.NewWebhookProcessor(
		idempotency,
		s.repos.Credit,
		s.repos.Subscription,
		s.repos.Profile,
		s.repos.Plan,
		s.stripe,
		s.publisher,
		s.logger,
	)
	subscriptionService := usecase.NewSubscriptionService(
		s.repos.Subscription,
		s.repos.Plan,
		s.repos.Profile,
		s.repos.Credit,
		s.stripe,
		s.publisher,
		s.logger,
	)
	creditService := usecase.NewCreditService(s.repos.Credit, s.publisher, s.logger)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(processor, s.config.Service.StripeWebhookSecret, s.logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService, s.logger)
	creditHandler := handlers.NewCreditHandler(creditService, s.logger)
	plansHandler := handlers.NewPlansHandler(s.repos.Plan, s.logger)

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
			"/webhook",
			"/api/v1/plans",
		},
	}

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	// Public routes (no authentication required)
	v1.GET("/plans", plansHandler.GetPlans)

	// Protected routes (require JWT authentication)
	protected := v1.Group("", auth.JWTMiddleware(jwtConfig))

	subscriptions := protected.Group("/subscriptions")
	subscriptions.GET("/current", subscriptionHandler.GetCurrent)
	subscriptions.POST("/change", subscriptionHandler.ChangePlan)
	subscriptions.POST("/cancel", subscriptionHandler.Cancel)

	credits := protected.Group("/credits")
	credits.GET("/balance", creditHandler.GetBalance)
	credits.GET("/transactions", creditHandler.GetTransactions)
	credits.POST("/use", creditHandler.UseCredits)

	// Internal routes (admin role enforced in the handler)
	internal := protected.Group("/internal")
	internal.POST("/credits/adjust", creditHandler.AdjustCredits)

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook", webhookHandler.HandleWebhook)
}
