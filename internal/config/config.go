// Package config holds engine configuration: iteration budget, dispatch
// concurrency, verifier call tunables, registry file location, and
// logging. Configuration is loaded from YAML with environment overrides
// and validated before any run begins.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"veriloop/internal/claim"
)

// Config is the engine configuration.
type Config struct {
	// MaxIterations caps the extract→verify→remediate loop per run.
	MaxIterations int `yaml:"max_iterations"`

	// Concurrency limits parallel claim verification within an iteration.
	Concurrency int `yaml:"concurrency"`

	Verifier VerifierConfig `yaml:"verifier"`

	// RegistryPath points at the YAML domain registry file. Empty means
	// domains are registered programmatically.
	RegistryPath string `yaml:"registry_path"`

	// WatchRegistry reloads the registry file on change.
	WatchRegistry bool `yaml:"watch_registry"`

	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// VerifierConfig tunes adapter invocation at the router boundary.
type VerifierConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// LedgerConfig configures the snapshot sink.
type LedgerConfig struct {
	// Dir enables the JSONL file sink when non-empty; snapshots are
	// always kept in memory for replay regardless.
	Dir string `yaml:"dir"`
}

// LoggingConfig configures zap construction.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		MaxIterations: 5,
		Concurrency:   8,
		Verifier: VerifierConfig{
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			BackoffBase: 200 * time.Millisecond,
			BackoffMax:  5 * time.Second,
			CacheTTL:    10 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading config: %v", claim.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config %s: %v", claim.ErrConfiguration, path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override file settings.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VERILOOP_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("VERILOOP_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("VERILOOP_REGISTRY_PATH"); v != "" {
		c.RegistryPath = v
	}
	if v := os.Getenv("VERILOOP_LEDGER_DIR"); v != "" {
		c.Ledger.Dir = v
	}
	if v := os.Getenv("VERILOOP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects settings no run could honor.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be >= 1, got %d", claim.ErrConfiguration, c.MaxIterations)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be >= 1, got %d", claim.ErrConfiguration, c.Concurrency)
	}
	if c.Verifier.MaxAttempts < 1 {
		return fmt.Errorf("%w: verifier.max_attempts must be >= 1, got %d", claim.ErrConfiguration, c.Verifier.MaxAttempts)
	}
	if c.Verifier.Timeout <= 0 {
		return fmt.Errorf("%w: verifier.timeout must be positive", claim.ErrConfiguration)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", claim.ErrConfiguration, c.Logging.Level)
	}
	return nil
}
