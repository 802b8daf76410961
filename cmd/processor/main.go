package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dukerupert/skuld/internal"
	"github.com/dukerupert/skuld/internal/ops"
	"github.com/dukerupert/skuld/internal/orders"
	"github.com/dukerupert/skuld/internal/postgres"
	"github.com/dukerupert/skuld/internal/reminder"
	"github.com/dukerupert/skuld/internal/scheduler"
	"github.com/dukerupert/skuld/internal/service"
	"github.com/dukerupert/skuld/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for the application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	// Order placement collaborator
	logger.Info("Initializing Stripe order placer...")
	stripeConfig := orders.StripeConfig{
		APIKey:     cfg.Stripe.SecretKey,
		MaxRetries: cfg.Stripe.MaxRetries,
	}
	placer, err := orders.NewStripePlacer(stripeConfig, store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe placer: %w", err)
	}
	logger.Info("Stripe order placer initialized", "test_mode", stripeConfig.IsTestMode())

	// Reminder dispatcher
	dispatcher, err := reminder.NewNATSDispatcher(cfg.NATS.URL, cfg.NATS.ReminderSubject, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reminder dispatcher: %w", err)
	}
	defer dispatcher.Close()

	// Processor
	metrics := telemetry.NewBillingMetrics("skuld", nil)
	httpMetrics := telemetry.NewHTTPMetrics("skuld", nil)
	selector := service.NewSelector(store, cfg.Processor.ReminderLeadTime)
	processor := service.NewProcessor(store, selector, placer, dispatcher, metrics,
		service.ProcessorConfig{
			MaxConcurrency:   cfg.Processor.MaxConcurrency,
			PlacementTimeout: cfg.Processor.PlacementTimeout,
			AdvanceRetried:   cfg.Processor.AdvanceRetried,
		}, logger)

	// Ops server
	opsServer := ops.NewServer(cfg.Port, store, httpMetrics, logger)
	go func() {
		if err := opsServer.Start(); err != nil {
			logger.Error("ops server stopped", "error", err)
		}
	}()

	// Billing scheduler, blocks until shutdown
	sched := scheduler.New(processor, cfg.Processor.RunInterval, true, logger)
	err = sched.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := opsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("ops server shutdown failed", "error", shutdownErr)
	}

	if err == context.Canceled {
		return nil
	}
	return err
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("processor exited: %v", err)
	}
}
