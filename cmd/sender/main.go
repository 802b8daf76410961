package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/dukerupert/skuld/internal"
	"github.com/dukerupert/skuld/internal/email"
	"github.com/dukerupert/skuld/internal/postgres"
	"github.com/dukerupert/skuld/internal/sender"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name("skuld-sender"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer conn.Close()

	smtpSender := email.NewSMTPSender(&email.SMTPConfig{
		Host:     cfg.Email.Host,
		Port:     int(cfg.Email.Port),
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
	}, logger)

	svc := sender.New(conn, cfg.NATS.ReminderSubject, store, smtpSender, cfg.Email.FromName, logger)

	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("sender exited: %v", err)
	}
}
