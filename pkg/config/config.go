// Package config holds the single configuration structure of the crawler.
//
// Precedence, lowest first: Default(), a YAML file passed to Load, then
// command-line flags and environment variables applied by the CLI.
// Validate must be called before the values are handed to components.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/checkpoint"
	"github.com/Sternrassler/catalog-crawler/pkg/client"
	"github.com/Sternrassler/catalog-crawler/pkg/driver"
	"github.com/Sternrassler/catalog-crawler/pkg/engine"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/Sternrassler/catalog-crawler/pkg/normalize"
	"github.com/Sternrassler/catalog-crawler/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// DefaultAPITemplate is the product endpoint of the public catalog API.
const DefaultAPITemplate = "https://tiki.vn/api/v2/products/{id}"

// Config is the crawler configuration.
type Config struct {
	// Remote API
	APITemplate       string        `yaml:"api_template"`
	UserAgent         string        `yaml:"user_agent"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RetryMaxBackoff   time.Duration `yaml:"retry_max_backoff"`
	RetryJitter       float64       `yaml:"retry_jitter"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`

	// Batching
	Concurrency      int           `yaml:"concurrency"`
	BatchSize        int           `yaml:"batch_size"`
	BatchCooldown    time.Duration `yaml:"batch_cooldown"`
	ProgressEvery    int           `yaml:"progress_every"`
	ReportNotFound   bool          `yaml:"report_not_found"`
	MinArtifactBytes int64         `yaml:"min_artifact_bytes"`

	// Paths
	IDsFile   string `yaml:"ids_file"`
	OutputDir string `yaml:"output_dir"`
	LogsDir   string `yaml:"logs_dir"`

	// Normalization
	DescriptionMaxLen int `yaml:"description_max_len"`

	// Payload cache (empty RedisAddr disables it)
	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	// Warehouse loader
	PostgresDSN   string `yaml:"postgres_dsn"`
	LoadBatchSize int    `yaml:"load_batch_size"`

	// Observability
	MetricsAddr string         `yaml:"metrics_addr"`
	Log         logging.Config `yaml:"log"`

	Notify Notify `yaml:"notify"`
}

// Notify configures job notifications. An empty SMTPHost means log-only.
type Notify struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		APITemplate:       DefaultAPITemplate,
		UserAgent:         client.DefaultUserAgent,
		RequestTimeout:    15 * time.Second,
		MaxRetries:        3,
		RetryBackoff:      time.Second,
		RetryMaxBackoff:   30 * time.Second,
		RetryJitter:       0.2,
		Concurrency:       50,
		BatchSize:         1000,
		BatchCooldown:     200 * time.Millisecond,
		ProgressEvery:     100,
		MinArtifactBytes:  checkpoint.DefaultMinBytes,
		IDsFile:           "data/product_ids.csv",
		OutputDir:         "data/output",
		LogsDir:           "logs",
		DescriptionMaxLen: normalize.DefaultMaxLen,
		CacheTTL:          24 * time.Hour,
		LoadBatchSize:     500,
		Log:               logging.DefaultConfig(),
		Notify:            Notify{SMTPPort: 587},
	}
}

// Load overlays the YAML file at path onto Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !strings.Contains(c.APITemplate, client.IDPlaceholder) {
		add("api_template must contain %s", client.IDPlaceholder)
	}
	if c.UserAgent == "" {
		add("user_agent is required")
	}
	if c.RequestTimeout <= 0 {
		add("request_timeout must be positive")
	}
	if c.MaxRetries < 1 {
		add("max_retries must be >= 1")
	}
	if c.RetryBackoff < 0 {
		add("retry_backoff must not be negative")
	}
	if c.RetryMaxBackoff <= 0 {
		add("retry_max_backoff must be positive")
	}
	if c.RetryJitter < 0 || c.RetryJitter >= 1 {
		add("retry_jitter must be in [0, 1)")
	}
	if c.RequestsPerSecond < 0 {
		add("requests_per_second must not be negative")
	}
	if c.Concurrency < 1 {
		add("concurrency must be >= 1")
	}
	if c.BatchSize < 1 {
		add("batch_size must be >= 1")
	}
	if c.BatchCooldown < 0 {
		add("batch_cooldown must not be negative")
	}
	if c.MinArtifactBytes < 1 {
		add("min_artifact_bytes must be >= 1")
	}
	if c.OutputDir == "" {
		add("output_dir is required")
	}
	if c.DescriptionMaxLen < 1 {
		add("description_max_len must be >= 1")
	}
	if c.LoadBatchSize < 1 {
		add("load_batch_size must be >= 1")
	}
	if err := logging.Validate(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Notify.SMTPHost != "" && (c.Notify.From == "" || len(c.Notify.To) == 0) {
		add("notify requires from and to when smtp_host is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// RetryPolicy builds the per-identifier retry policy.
func (c Config) RetryPolicy() client.RetryPolicy {
	p := client.DefaultRetryPolicy()
	p.MaxAttempts = c.MaxRetries
	p.BaseBackoff = c.RetryBackoff
	p.MaxBackoff = c.RetryMaxBackoff
	p.Jitter = c.RetryJitter
	return p
}

// Client builds the fetch client configuration. Cache and limiter are wired by the caller.
func (c Config) Client() client.Config {
	cc := client.DefaultConfig(c.APITemplate)
	cc.UserAgent = c.UserAgent
	cc.Timeout = c.RequestTimeout
	cc.Retry = c.RetryPolicy()
	cc.DescriptionMaxLen = c.DescriptionMaxLen
	return cc
}

// Engine builds the batch engine configuration.
func (c Config) Engine() engine.Config {
	return engine.Config{
		Concurrency:    c.Concurrency,
		ProgressEvery:  c.ProgressEvery,
		ReportNotFound: c.ReportNotFound,
	}
}

// Driver builds the batch loop configuration.
func (c Config) Driver() driver.Config {
	return driver.Config{
		BatchSize:        c.BatchSize,
		MinArtifactBytes: c.MinArtifactBytes,
		Cooldown:         c.BatchCooldown,
	}
}

// RateLimit builds the request pacer configuration.
func (c Config) RateLimit() ratelimit.Config {
	return ratelimit.DefaultConfig(c.RequestsPerSecond)
}
