/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the academy billing server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env / environment)
  2. Initialize zap logger
  3. Open SQLite store and run migrations
  4. Pick the invoice sender (SendGrid if a key is set, console otherwise)
  5. Wire handler, router, overdue sweeper
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the overdue sweeper
  4. Close database connection

ENVIRONMENT:
  BILLING_ADDR            listen address (default :8080)
  BILLING_DB_PATH         SQLite path, ":memory:" allowed (default billing.db)
  SENDGRID_API_KEY        enables real email delivery
  BILLING_FROM_NAME       sender display name
  BILLING_FROM_EMAIL      sender address
  BILLING_OVERDUE_SWEEP   sweep interval, e.g. "30m" (0 disables)
  BILLING_SEED_DEMO       seed the demo dataset on startup

SEE ALSO:
  - config/config.go: Environment loading
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cadenza/academy-billing/api"
	"github.com/cadenza/academy-billing/config"
	"github.com/cadenza/academy-billing/notify"
	"github.com/cadenza/academy-billing/store/sqlite"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("loading configuration", zap.Error(err))
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("initializing database", zap.Error(err))
	}
	defer store.Close()

	var sender notify.Sender
	if cfg.SendgridKey != "" {
		sender = notify.NewSendgridSender(cfg.SendgridKey, cfg.FromName, cfg.FromEmail)
		logger.Info("invoice delivery via sendgrid", zap.String("from", cfg.FromEmail))
	} else {
		sender = notify.NewConsoleSender(logger)
		logger.Info("no SENDGRID_API_KEY, invoice documents go to the log")
	}

	handler := api.NewHandler(store, notify.NewService(sender), logger)

	if cfg.SeedDemo {
		if err := handler.SeedDemo(context.Background()); err != nil {
			logger.Warn("demo seed failed", zap.Error(err))
		}
	}

	sweeper := api.NewOverdueSweeper(handler.Invoices, logger)
	if cfg.OverdueSweepEvery > 0 {
		sweeper.CheckInterval = cfg.OverdueSweepEvery
		sweeper.Start()
		defer sweeper.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
