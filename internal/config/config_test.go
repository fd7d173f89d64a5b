package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriloop/internal/claim"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "veriloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.MaxIterations)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Verifier.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
max_iterations: 2
verifier:
  timeout: 5s
  max_attempts: 1
ledger:
  dir: /var/lib/veriloop
logging:
  level: debug
  development: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxIterations)
	assert.Equal(t, 5*time.Second, cfg.Verifier.Timeout)
	assert.Equal(t, 1, cfg.Verifier.MaxAttempts)
	assert.Equal(t, "/var/lib/veriloop", cfg.Ledger.Dir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	// Untouched fields keep their defaults.
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.Verifier.BackoffBase)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, claim.ErrConfiguration)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "max_iterations: [not, a, number]")
	_, err := Load(path)
	require.ErrorIs(t, err, claim.ErrConfiguration)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "max_iterations: 2\nregistry_path: from-file.yaml\n")
	t.Setenv("VERILOOP_MAX_ITERATIONS", "7")
	t.Setenv("VERILOOP_CONCURRENCY", "2")
	t.Setenv("VERILOOP_REGISTRY_PATH", "from-env.yaml")
	t.Setenv("VERILOOP_LEDGER_DIR", "/tmp/ledger")
	t.Setenv("VERILOOP_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "from-env.yaml", cfg.RegistryPath)
	assert.Equal(t, "/tmp/ledger", cfg.Ledger.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestEnvOverrideIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("VERILOOP_MAX_ITERATIONS", "many")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxIterations)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"zero max_attempts", func(c *Config) { c.Verifier.MaxAttempts = 0 }},
		{"zero timeout", func(c *Config) { c.Verifier.Timeout = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), claim.ErrConfiguration)
		})
	}
}
