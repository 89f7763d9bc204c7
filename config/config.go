package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the engine's operational settings, loaded from a JSON
// file with env-var overrides. Provider fee rates live in a separate
// YAML table (see flashloan.LoadRegistry); they are injected
// configuration, never constants.
type Config struct {
	// Scan settings
	TickInterval time.Duration `json:"-"`
	TickSeconds  float64       `json:"tick_seconds"`
	MaxHops      int           `json:"max_hops"`
	Workers      int           `json:"workers"`
	StartTokens  []string      `json:"start_tokens"`

	// Snapshot policy
	MaxStaleness time.Duration `json:"-"`
	MaxStaleSecs float64       `json:"max_staleness_seconds"`

	// Optimizer settings
	AmountProbes  int    `json:"amount_probes"`
	PoolFanOut    int    `json:"pool_fan_out"`
	MinLoanAmount string `json:"min_loan_amount"`
	MaxLoanAmount string `json:"max_loan_amount"`

	// Decision policy
	PriceImpactLimit string `json:"price_impact_limit"`
	ScoreThreshold   string `json:"score_threshold"`

	// Cache settings
	CacheSize   int           `json:"cache_size"`
	CacheTTL    time.Duration `json:"-"`
	CacheTTLSec float64       `json:"cache_ttl_seconds"`

	// Collaborator wiring
	FeeTablePath     string `json:"fee_table_path"`
	SnapshotPath     string `json:"snapshot_path"`
	CommitmentSecret string `json:"-"`

	// Observability
	MetricsNamespace string `json:"metrics_namespace"`
}

// Default returns a config with workable settings for a 2-second scan.
func Default() *Config {
	return &Config{
		TickInterval:     2 * time.Second,
		MaxHops:          3,
		Workers:          4,
		AmountProbes:     12,
		PoolFanOut:       3,
		MinLoanAmount:    "1000",
		MaxLoanAmount:    "100000",
		PriceImpactLimit: "0.03",
		ScoreThreshold:   "0.4",
		CacheSize:        4096,
		CacheTTL:         2 * time.Second,
		MaxStaleness:     30 * time.Second,
		FeeTablePath:     "providers.yaml",
		MetricsNamespace: "arbengine",
	}
}

// Load reads a JSON config file over the defaults and applies env
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if cfg.TickSeconds > 0 {
			cfg.TickInterval = time.Duration(cfg.TickSeconds * float64(time.Second))
		}
		if cfg.MaxStaleSecs > 0 {
			cfg.MaxStaleness = time.Duration(cfg.MaxStaleSecs * float64(time.Second))
		}
		if cfg.CacheTTLSec > 0 {
			cfg.CacheTTL = time.Duration(cfg.CacheTTLSec * float64(time.Second))
		}
	}
	applyEnv(cfg)
	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: tick interval must be positive")
	}
	if c.MaxHops < 2 || c.MaxHops > 4 {
		return fmt.Errorf("config: max_hops %d outside [2,4]", c.MaxHops)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("config: cache_size must be positive")
	}
	for _, field := range []struct{ name, val string }{
		{"min_loan_amount", c.MinLoanAmount},
		{"max_loan_amount", c.MaxLoanAmount},
		{"price_impact_limit", c.PriceImpactLimit},
		{"score_threshold", c.ScoreThreshold},
	} {
		if _, err := decimal.NewFromString(field.val); err != nil {
			return fmt.Errorf("config: %s %q: %w", field.name, field.val, err)
		}
	}
	lo, _ := decimal.NewFromString(c.MinLoanAmount)
	hi, _ := decimal.NewFromString(c.MaxLoanAmount)
	if lo.Sign() <= 0 || hi.LessThan(lo) {
		return fmt.Errorf("config: loan amount bounds [%s, %s] invalid", lo, hi)
	}
	return nil
}

// AmountBounds returns the parsed loan-amount search interval.
func (c *Config) AmountBounds() (decimal.Decimal, decimal.Decimal) {
	lo, _ := decimal.NewFromString(c.MinLoanAmount)
	hi, _ := decimal.NewFromString(c.MaxLoanAmount)
	return lo, hi
}

// ImpactLimit returns the parsed price-impact ceiling.
func (c *Config) ImpactLimit() decimal.Decimal {
	d, _ := decimal.NewFromString(c.PriceImpactLimit)
	return d
}

// Threshold returns the parsed success-probability floor.
func (c *Config) Threshold() decimal.Decimal {
	d, _ := decimal.NewFromString(c.ScoreThreshold)
	return d
}
