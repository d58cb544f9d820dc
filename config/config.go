// Package config holds the explicit configuration value object for
// beautypos. Collaborators receive a Config by injection; nothing reads
// settings ambiently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config carries every tunable the core and its collaborators consume.
type Config struct {
	// HTTPAddr is the listen address of the API surface.
	HTTPAddr string

	// DatabasePath is the SQLite file backing the local store.
	DatabasePath string

	// RemoteBaseURL is the Apps-Script-style endpoint of the remote store.
	// Empty means the terminal runs purely offline.
	RemoteBaseURL string

	// RemoteTimeout bounds a single remote call. A call that does not
	// resolve within it is treated as a network failure.
	RemoteTimeout time.Duration

	// SyncInterval is the cadence of the background queue drain.
	SyncInterval time.Duration

	// CardFeePercent is applied to card sales when fees are omitted.
	CardFeePercent decimal.Decimal

	// TaxPercent and TargetMarginPercent feed the pricing collaborator.
	TaxPercent          decimal.Decimal
	TargetMarginPercent decimal.Decimal

	// MinStockThreshold is the default low-stock boundary for new products.
	MinStockThreshold int
}

// Default returns the configuration the shop runs with out of the box.
func Default() Config {
	return Config{
		HTTPAddr:            ":8080",
		DatabasePath:        "beautypos.db",
		RemoteTimeout:       10 * time.Second,
		SyncInterval:        30 * time.Second,
		CardFeePercent:      decimal.NewFromFloat(3.5),
		TaxPercent:          decimal.NewFromFloat(6),
		TargetMarginPercent: decimal.NewFromFloat(40),
		MinStockThreshold:   5,
	}
}

// Load builds the configuration from the environment, reading a .env file
// first when one exists.
func Load() (Config, error) {
	// Missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	cfg := Default()

	if v := os.Getenv("BEAUTYPOS_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("BEAUTYPOS_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("BEAUTYPOS_REMOTE_URL"); v != "" {
		cfg.RemoteBaseURL = v
	}

	var err error
	if cfg.RemoteTimeout, err = durationEnv("BEAUTYPOS_REMOTE_TIMEOUT", cfg.RemoteTimeout); err != nil {
		return cfg, err
	}
	if cfg.SyncInterval, err = durationEnv("BEAUTYPOS_SYNC_INTERVAL", cfg.SyncInterval); err != nil {
		return cfg, err
	}
	if cfg.CardFeePercent, err = decimalEnv("BEAUTYPOS_CARD_FEE_PERCENT", cfg.CardFeePercent); err != nil {
		return cfg, err
	}
	if cfg.TaxPercent, err = decimalEnv("BEAUTYPOS_TAX_PERCENT", cfg.TaxPercent); err != nil {
		return cfg, err
	}
	if cfg.TargetMarginPercent, err = decimalEnv("BEAUTYPOS_MARGIN_PERCENT", cfg.TargetMarginPercent); err != nil {
		return cfg, err
	}
	if cfg.MinStockThreshold, err = intEnv("BEAUTYPOS_MIN_STOCK", cfg.MinStockThreshold); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func decimalEnv(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
