// Package config loads run configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/metrics"
	"shop-analytics/internal/refdata"
)

// Config holds everything a report run reads from the environment.
type Config struct {
	PostgresDSN   string `env:"POSTGRES_DSN"`   // required unless running on fixtures
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"` // optional report mirror
	PostgresPool  int32  `env:"POSTGRES_POOL_SIZE" envDefault:"8"`

	// Reference tables, relative to RefdataDir unless absolute
	RefdataDir     string `env:"REFDATA_DIR" envDefault:"."`
	CostFile       string `env:"COST_FILE" envDefault:"cost.csv"`
	DesiFile       string `env:"DESI_FILE" envDefault:"all_products_desi.csv"`
	ZonesFile      string `env:"ZONES_FILE" envDefault:"fedex_country_code_and_zone_number.csv"`
	PricingFile    string `env:"PRICING_FILE" envDefault:"fedex_price_per_kg_for_zones.csv"`
	USShippingFile string `env:"US_SHIPPING_FILE" envDefault:"us_fedex_desi_and_price.csv"`
	CostYears      []int  `env:"COST_YEARS" envDefault:"2023,2024,2025,2026" envSeparator:","`

	// Fee schedule
	TransactionFeeRate float64 `env:"TRANSACTION_FEE_RATE" envDefault:"0.065"`
	ProcessingFeeRate  float64 `env:"PROCESSING_FEE_RATE" envDefault:"0.03"`
	ProcessingFeeFixed float64 `env:"PROCESSING_FEE_FIXED" envDefault:"0.25"`

	// Run shaping
	MaxConcurrent         int      `env:"MAX_CONCURRENT" envDefault:"3"`
	BatchSize             int      `env:"BATCH_SIZE" envDefault:"100"`
	PeriodTypes           []string `env:"PERIOD_TYPES" envDefault:"yearly,monthly,weekly" envSeparator:","`
	CostCacheSize         int      `env:"COST_CACHE_SIZE" envDefault:"5000"`
	SiblingLookbackMonths int      `env:"SIBLING_LOOKBACK_MONTHS" envDefault:"24"`

	// Missing-cost quantity a child may carry and still be rolled up; -1 is unlimited
	ShopMissingCostTolerance    int `env:"SHOP_MISSING_COST_TOLERANCE" envDefault:"0"`
	ListingMissingCostTolerance int `env:"LISTING_MISSING_COST_TOLERANCE" envDefault:"-1"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`

	MetricsAddr string `env:"METRICS_ADDR"` // empty disables the metrics endpoint
}

// Load reads the .env files that exist, then parses the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate rejects values no run can use.
func (c *Config) Validate() error {
	switch {
	case c.TransactionFeeRate < 0 || c.ProcessingFeeRate < 0 || c.ProcessingFeeFixed < 0:
		return errors.New("fee rates must not be negative")
	case c.MaxConcurrent < 1:
		return fmt.Errorf("MAX_CONCURRENT must be at least 1, got %d", c.MaxConcurrent)
	case c.BatchSize < 1:
		return fmt.Errorf("BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	case c.CostCacheSize < 1:
		return fmt.Errorf("COST_CACHE_SIZE must be at least 1, got %d", c.CostCacheSize)
	case c.SiblingLookbackMonths < 0:
		return fmt.Errorf("SIBLING_LOOKBACK_MONTHS must not be negative, got %d", c.SiblingLookbackMonths)
	case c.PostgresPool < 1:
		return fmt.Errorf("POSTGRES_POOL_SIZE must be at least 1, got %d", c.PostgresPool)
	}
	if _, err := c.ParsedPeriodTypes(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Fees returns the configured fee schedule.
func (c *Config) Fees() metrics.FeeSchedule {
	return metrics.FeeSchedule{
		TransactionRate: c.TransactionFeeRate,
		ProcessingRate:  c.ProcessingFeeRate,
		ProcessingFixed: c.ProcessingFeeFixed,
	}
}

// ParsedPeriodTypes returns the configured period types in order.
func (c *Config) ParsedPeriodTypes() ([]domain.PeriodType, error) {
	out := make([]domain.PeriodType, 0, len(c.PeriodTypes))
	for _, s := range c.PeriodTypes {
		t := domain.PeriodType(s)
		if !t.Valid() {
			return nil, fmt.Errorf("PERIOD_TYPES: unknown period type %q", s)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errors.New("PERIOD_TYPES must name at least one period type")
	}
	return out, nil
}

// ListingPolicy is the completeness rule for listing rollups.
func (c *Config) ListingPolicy() metrics.Policy {
	return metrics.Policy{MaxMissingQuantity: c.ListingMissingCostTolerance}
}

// ShopPolicy is the completeness rule for the shop rollup.
func (c *Config) ShopPolicy() metrics.Policy {
	return metrics.Policy{MaxMissingQuantity: c.ShopMissingCostTolerance}
}

// RefdataPaths returns the reference table locations.
func (c *Config) RefdataPaths() refdata.Paths {
	return refdata.Paths{
		Cost:      c.CostFile,
		Weights:   c.DesiFile,
		Zones:     c.ZonesFile,
		Prices:    c.PricingFile,
		USRates:   c.USShippingFile,
		BaseDir:   c.RefdataDir,
		CostYears: c.CostYears,
	}
}
