package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/config"
	"github.com/jonit-dev/pixelperfect-sub009/internal/infrastructure/database"
	httpServer "github.com/jonit-dev/pixelperfect-sub009/internal/infrastructure/http"
	stripeProvider "github.com/jonit-dev/pixelperfect-sub009/internal/infrastructure/provider/stripe"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/logger"
	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, zapLogger)

	// Initialize Stripe gateway
	stripeGateway := stripeProvider.NewClient(cfg.Service.StripeSecretKey, zapLogger)

	// Balance change notifications are best-effort: run without them when
	// Redis is unreachable rather than refusing to serve webhooks.
	publisher, err := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Warn("Redis unavailable, credit change events disabled", zap.Error(err))
		publisher = nil
	} else {
		defer publisher.Close()
	}

	// Initialize HTTP server
	srv := httpServer.NewServer(cfg, zapLogger, repos, stripeGateway, publisher)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Server shut down successfully")
}
