package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBackendURL is the in-cluster VictoriaMetrics single-node service
	DefaultBackendURL = "http://vmsingle-vm-victoria-metrics-k8s-stack.victoria-metrics.svc:8429"
	// DefaultDevBackendURL is used when a request asks for the development backend
	DefaultDevBackendURL = "http://localhost:8429"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Stream     StreamConfig     `yaml:"stream"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RequestTimeout string `yaml:"request_timeout"`
}

// BackendConfig describes the Prometheus-compatible metrics backend
type BackendConfig struct {
	URL     string `yaml:"url"`
	DevURL  string `yaml:"dev_url"`
	Timeout string `yaml:"timeout"`
	Metric  string `yaml:"metric"`
}

// ResolverConfig controls how sensor instances are mapped to node names
type ResolverConfig struct {
	// Source is either "prometheus" (kube_pod_info) or "kubernetes" (pod list)
	Source       string `yaml:"source"`
	PodMatch     string `yaml:"pod_match"`
	ExporterPort int    `yaml:"exporter_port"`
	// CacheTTL keeps a resolved mapping for this long; "0s" resolves on every request
	CacheTTL string `yaml:"cache_ttl"`
}

// KubernetesConfig is only used when the resolver source is "kubernetes"
type KubernetesConfig struct {
	Mode           string `yaml:"mode"`
	KubeconfigPath string `yaml:"kubeconfig_path"`
	Namespace      string `yaml:"namespace"`
}

// StreamConfig configures the websocket snapshot stream
type StreamConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
}

// RateLimitsConfig represents the rate limits configuration
type RateLimitsConfig struct {
	TemperaturesPerMinute int `yaml:"temperatures_per_minute"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "0.0.0.0:3000",
			RequestTimeout: "60s",
		},
		Backend: BackendConfig{
			URL:     DefaultBackendURL,
			DevURL:  DefaultDevBackendURL,
			Timeout: "10s",
			Metric:  "node_hwmon_temp_celsius",
		},
		Resolver: ResolverConfig{
			Source:       "prometheus",
			PodMatch:     "node-exporter",
			ExporterPort: 9100,
			CacheTTL:     "0s",
		},
		Kubernetes: KubernetesConfig{
			Mode: "incluster",
		},
		Stream: StreamConfig{
			Enabled:  false,
			Interval: "30s",
		},
		RateLimits: RateLimitsConfig{
			TemperaturesPerMinute: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile layers an optional YAML file over the defaults, then applies
// environment overrides. An empty configPath skips the file. Environment
// variables always win.
func LoadFromFile(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML from %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("BLADETEMP_SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.RequestTimeout = getEnv("BLADETEMP_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)

	cfg.Backend.URL = getEnv("BLADETEMP_BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.DevURL = getEnv("BLADETEMP_BACKEND_DEV_URL", cfg.Backend.DevURL)
	cfg.Backend.Timeout = getEnv("BLADETEMP_BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.Metric = getEnv("BLADETEMP_METRIC", cfg.Backend.Metric)

	cfg.Resolver.Source = getEnv("BLADETEMP_RESOLVER_SOURCE", cfg.Resolver.Source)
	cfg.Resolver.PodMatch = getEnv("BLADETEMP_RESOLVER_POD_MATCH", cfg.Resolver.PodMatch)
	cfg.Resolver.ExporterPort = getEnvInt("BLADETEMP_EXPORTER_PORT", cfg.Resolver.ExporterPort)
	cfg.Resolver.CacheTTL = getEnv("BLADETEMP_RESOLVER_CACHE_TTL", cfg.Resolver.CacheTTL)

	cfg.Kubernetes.Mode = getEnv("BLADETEMP_KUBE_MODE", cfg.Kubernetes.Mode)
	cfg.Kubernetes.KubeconfigPath = getEnv("KUBECONFIG", cfg.Kubernetes.KubeconfigPath)
	cfg.Kubernetes.Namespace = getEnv("BLADETEMP_KUBE_NAMESPACE", cfg.Kubernetes.Namespace)

	cfg.Stream.Enabled = getEnvBool("BLADETEMP_STREAM_ENABLED", cfg.Stream.Enabled)
	cfg.Stream.Interval = getEnv("BLADETEMP_STREAM_INTERVAL", cfg.Stream.Interval)

	cfg.RateLimits.TemperaturesPerMinute = getEnvInt("BLADETEMP_TEMPERATURES_PER_MINUTE", cfg.RateLimits.TemperaturesPerMinute)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.FilePath = getEnv("LOG_FILE", cfg.Logging.FilePath)

	// Override port if PORT env var is set
	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Addr = "0.0.0.0:" + port
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if _, err := parsePositiveDuration("server.request_timeout", c.Server.RequestTimeout); err != nil {
		return err
	}

	if err := validateBackendURL("backend.url", c.Backend.URL); err != nil {
		return err
	}
	if err := validateBackendURL("backend.dev_url", c.Backend.DevURL); err != nil {
		return err
	}
	if _, err := parsePositiveDuration("backend.timeout", c.Backend.Timeout); err != nil {
		return err
	}
	if c.Backend.Metric == "" {
		return fmt.Errorf("backend metric cannot be empty")
	}

	if c.Resolver.Source != "prometheus" && c.Resolver.Source != "kubernetes" {
		return fmt.Errorf("resolver source must be 'prometheus' or 'kubernetes'")
	}
	if c.Resolver.PodMatch == "" {
		return fmt.Errorf("resolver pod match cannot be empty")
	}
	if c.Resolver.ExporterPort <= 0 || c.Resolver.ExporterPort > 65535 {
		return fmt.Errorf("resolver exporter port %d is out of range", c.Resolver.ExporterPort)
	}
	if d, err := time.ParseDuration(c.Resolver.CacheTTL); err != nil {
		return fmt.Errorf("invalid resolver.cache_ttl %q: %w", c.Resolver.CacheTTL, err)
	} else if d < 0 {
		return fmt.Errorf("resolver.cache_ttl cannot be negative")
	}
	if c.Resolver.Source == "kubernetes" && c.Kubernetes.Mode != "incluster" && c.Kubernetes.Mode != "kubeconfig" {
		return fmt.Errorf("kubernetes mode must be 'incluster' or 'kubeconfig'")
	}

	if c.Stream.Enabled {
		if _, err := parsePositiveDuration("stream.interval", c.Stream.Interval); err != nil {
			return err
		}
	}

	if c.RateLimits.TemperaturesPerMinute < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}

	return nil
}

// RequestTimeout returns the parsed per-request handler timeout
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.RequestTimeout)
	return d
}

// BackendTimeout returns the parsed upstream query timeout
func (c *Config) BackendTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Backend.Timeout)
	return d
}

// ResolverCacheTTL returns the parsed mapping cache lifetime; zero disables caching
func (c *Config) ResolverCacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Resolver.CacheTTL)
	return d
}

// StreamInterval returns the parsed stream poll interval
func (c *Config) StreamInterval() time.Duration {
	d, _ := time.ParseDuration(c.Stream.Interval)
	return d
}

// BackendURL picks the development or production backend
func (c *Config) BackendURL(dev bool) string {
	if dev {
		return c.Backend.DevURL
	}
	return c.Backend.URL
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}

func validateBackendURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}
	return nil
}
