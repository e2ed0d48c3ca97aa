// Package config loads dispatcher configuration from YAML files and
// assembles the runtime pieces (adapter, retry policy, cache, limits)
// from it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxkit/voxkit/cache"
	"github.com/voxkit/voxkit/metrics/prometheus"
	"github.com/voxkit/voxkit/tts"
)

// Config is the top-level configuration document.
type Config struct {
	Provider ProviderConfig  `yaml:"provider"`
	Retry    RetryConfig     `yaml:"retry"`
	Batch    BatchConfig     `yaml:"batch"`
	Rate     RateLimitConfig `yaml:"rate_limit"`
	Cache    CacheConfig     `yaml:"cache"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// ProviderConfig selects and credentials the active provider. Credential
// fields pass through os.ExpandEnv, so values like ${ELEVENLABS_API_KEY}
// resolve at load time.
type ProviderConfig struct {
	Type            string `yaml:"type"`
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// RetryConfig tunes the resilience engine. Zero fields keep the defaults.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Backoff     string        `yaml:"backoff"` // "exponential" or "fixed"
}

// BatchConfig tunes the batch orchestrator.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// RateLimitConfig caps outbound request rate. Zero disables the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CacheConfig enables the Redis voice catalog cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig configures the Prometheus exporter endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	cfg.Provider.AccessKeyID = os.ExpandEnv(cfg.Provider.AccessKeyID)
	cfg.Provider.SecretAccessKey = os.ExpandEnv(cfg.Provider.SecretAccessKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Provider.Type == "" {
		return fmt.Errorf("provider.type is required")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.concurrency must not be negative")
	}
	if c.Rate.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	switch c.Retry.Backoff {
	case "", "exponential", "fixed":
	default:
		return fmt.Errorf("retry.backoff must be exponential or fixed, got %q", c.Retry.Backoff)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when the cache is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// AdapterSpec converts the provider section into an adapter spec.
func (c *Config) AdapterSpec() tts.AdapterSpec {
	return tts.AdapterSpec{
		Type:            c.Provider.Type,
		APIKey:          c.Provider.APIKey,
		BaseURL:         c.Provider.BaseURL,
		Region:          c.Provider.Region,
		AccessKeyID:     c.Provider.AccessKeyID,
		SecretAccessKey: c.Provider.SecretAccessKey,
	}
}

// RetryPolicy converts the retry section into a policy. Unset fields keep
// their defaults.
func (c *Config) RetryPolicy() tts.RetryPolicy {
	policy := tts.RetryPolicy{
		MaxAttempts: c.Retry.MaxAttempts,
		Timeout:     c.Retry.Timeout,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
	if c.Retry.Backoff == "fixed" {
		policy.Shape = tts.BackoffFixed
	}
	return policy
}

// BuildDispatcher assembles a dispatcher from the configuration: adapter
// selection, retry policy, batch concurrency, rate limit, and the voice
// cache when enabled. When the metrics section is enabled it also returns
// a Prometheus exporter bound to the configured address; the caller owns
// Start and Shutdown. The exporter is nil when metrics are disabled.
func (c *Config) BuildDispatcher() (*tts.Dispatcher, *prometheus.Exporter, error) {
	adapter, err := tts.CreateAdapterFromSpec(c.AdapterSpec())
	if err != nil {
		return nil, nil, err
	}

	dcfg := tts.DispatcherConfig{
		Adapter:          adapter,
		Policy:           c.RetryPolicy(),
		BatchConcurrency: c.Batch.Concurrency,
		RateLimit:        c.Rate.RequestsPerSecond,
		RateBurst:        c.Rate.Burst,
	}
	if c.Cache.Enabled {
		dcfg.VoiceCache = cache.New(c.Cache.Addr, c.Cache.Password, c.Cache.DB, c.Cache.TTL)
	}

	d, err := tts.NewDispatcher(dcfg)
	if err != nil {
		return nil, nil, err
	}

	var exporter *prometheus.Exporter
	if c.Metrics.Enabled {
		exporter = prometheus.NewExporter(c.Metrics.Addr)
	}
	return d, exporter, nil
}
