package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Test default configuration
	cfg, err := LoadFromFile("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:3000" {
		t.Errorf("Expected default server addr to be '0.0.0.0:3000', got '%s'", cfg.Server.Addr)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level to be 'info', got '%s'", cfg.Logging.Level)
	}

	if cfg.Backend.URL != DefaultBackendURL {
		t.Errorf("Expected default backend url to be %q, got %q", DefaultBackendURL, cfg.Backend.URL)
	}

	if cfg.Resolver.ExporterPort != 9100 {
		t.Errorf("Expected default exporter port 9100, got %d", cfg.Resolver.ExporterPort)
	}

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BLADETEMP_BACKEND_URL", "http://vm.example:8428")
	t.Setenv("BLADETEMP_STREAM_ENABLED", "true")
	t.Setenv("BLADETEMP_EXPORTER_PORT", "9200")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://vm.example:8428", cfg.Backend.URL)
	assert.True(t, cfg.Stream.Enabled)
	assert.Equal(t, 9200, cfg.Resolver.ExporterPort)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bladetemp.yaml")
	data := []byte(`
server:
  addr: "127.0.0.1:4000"
backend:
  url: "http://metrics.internal:8429"
  timeout: "3s"
resolver:
  source: kubernetes
  cache_ttl: 2m
kubernetes:
  mode: kubeconfig
  namespace: monitoring
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.Addr)
	assert.Equal(t, "http://metrics.internal:8429", cfg.Backend.URL)
	assert.Equal(t, 3*time.Second, cfg.BackendTimeout())
	assert.Equal(t, "kubernetes", cfg.Resolver.Source)
	assert.Equal(t, "monitoring", cfg.Kubernetes.Namespace)
	assert.Equal(t, 2*time.Minute, cfg.ResolverCacheTTL())

	// Values absent from the file keep their defaults
	assert.Equal(t, DefaultDevBackendURL, cfg.Backend.DevURL)
	assert.Equal(t, "node_hwmon_temp_celsius", cfg.Backend.Metric)
	assert.Equal(t, "node-exporter", cfg.Resolver.PodMatch)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bladetemp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o600))
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBackendURL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL(false))
	assert.Equal(t, DefaultDevBackendURL, cfg.BackendURL(true))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(*Config) {},
			wantError: false,
		},
		{
			name:      "empty server addr",
			mutate:    func(c *Config) { c.Server.Addr = "" },
			wantError: true,
		},
		{
			name:      "backend url without scheme",
			mutate:    func(c *Config) { c.Backend.URL = "vmsingle:8429" },
			wantError: true,
		},
		{
			name:      "bad backend timeout",
			mutate:    func(c *Config) { c.Backend.Timeout = "soon" },
			wantError: true,
		},
		{
			name:      "zero backend timeout",
			mutate:    func(c *Config) { c.Backend.Timeout = "0s" },
			wantError: true,
		},
		{
			name:      "invalid resolver source",
			mutate:    func(c *Config) { c.Resolver.Source = "dns" },
			wantError: true,
		},
		{
			name:      "exporter port out of range",
			mutate:    func(c *Config) { c.Resolver.ExporterPort = 70000 },
			wantError: true,
		},
		{
			name:      "negative resolver cache ttl",
			mutate:    func(c *Config) { c.Resolver.CacheTTL = "-1m" },
			wantError: true,
		},
		{
			name:      "unparsable resolver cache ttl",
			mutate:    func(c *Config) { c.Resolver.CacheTTL = "forever" },
			wantError: true,
		},
		{
			name: "invalid kubernetes mode",
			mutate: func(c *Config) {
				c.Resolver.Source = "kubernetes"
				c.Kubernetes.Mode = "invalid"
			},
			wantError: true,
		},
		{
			name: "stream interval ignored when disabled",
			mutate: func(c *Config) {
				c.Stream.Enabled = false
				c.Stream.Interval = "never"
			},
			wantError: false,
		},
		{
			name: "stream interval checked when enabled",
			mutate: func(c *Config) {
				c.Stream.Enabled = true
				c.Stream.Interval = "never"
			},
			wantError: true,
		},
		{
			name:      "negative rate limit",
			mutate:    func(c *Config) { c.RateLimits.TemperaturesPerMinute = -1 },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "trace" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
