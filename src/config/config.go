package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port              string
	DatabaseURL       string
	StoreBackend      string
	PlaidClientID     string
	PlaidSecret       string
	PlaidEnv          string
	PlaidClientName   string
	PlaidWebhookURL   string
	JWTSecret         string
	AllowedOrigins    []string
	IsDemo            bool
	VerifyWebhooks    bool
	AggregatorTimeout time.Duration
	SyncWorkers       int
}

func Load() (Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		StoreBackend:    getEnv("STORE_BACKEND", BackendPostgres),
		PlaidClientID:   getEnv("PLAID_CLIENT_ID", ""),
		PlaidSecret:     getEnv("PLAID_SECRET", ""),
		PlaidEnv:        getEnv("PLAID_ENV", "sandbox"),
		PlaidClientName: getEnv("PLAID_CLIENT_NAME", "Credit Card Tracker"),
		PlaidWebhookURL: getEnv("PLAID_WEBHOOK_URL", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
	}

	var err error
	if cfg.IsDemo, err = getBoolEnv("DEMO_MODE", false); err != nil {
		return cfg, err
	}
	if cfg.VerifyWebhooks, err = getBoolEnv("VERIFY_WEBHOOKS", true); err != nil {
		return cfg, err
	}
	if cfg.AggregatorTimeout, err = getDurationEnv("AGGREGATOR_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.SyncWorkers, err = getIntEnv("SYNC_WORKERS", 4); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q", BackendPostgres, BackendMemory))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AggregatorTimeout <= 0 {
		errs = append(errs, errors.New("AGGREGATOR_TIMEOUT must be positive"))
	}
	if c.SyncWorkers <= 0 {
		errs = append(errs, errors.New("SYNC_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getIntEnv(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
