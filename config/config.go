/*
Package config loads server configuration from the environment, with an
optional .env file for local development.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	Addr string

	// Storage: path to the SQLite database file, or ":memory:".
	DBPath string

	// Email. With no SendGrid key set, invoice documents go to the log.
	SendgridKey string
	FromName    string
	FromEmail   string

	// How often the overdue sweep runs. 0 disables it.
	OverdueSweepEvery time.Duration

	// Seed a demo dataset on startup (development only).
	SeedDemo bool
}

// Load reads the environment, after merging in .env if present.
func Load() (*Config, error) {
	// Missing .env is fine; the environment alone is enough.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Addr:        getenv("BILLING_ADDR", ":8080"),
		DBPath:      getenv("BILLING_DB_PATH", "billing.db"),
		SendgridKey: os.Getenv("SENDGRID_API_KEY"),
		FromName:    getenv("BILLING_FROM_NAME", "Academy Billing"),
		FromEmail:   getenv("BILLING_FROM_EMAIL", "billing@academy.local"),
	}

	sweep := getenv("BILLING_OVERDUE_SWEEP", "1h")
	d, err := time.ParseDuration(sweep)
	if err != nil {
		return nil, fmt.Errorf("BILLING_OVERDUE_SWEEP: %w", err)
	}
	cfg.OverdueSweepEvery = d

	if v := os.Getenv("BILLING_SEED_DEMO"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("BILLING_SEED_DEMO: %w", err)
		}
		cfg.SeedDemo = b
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
