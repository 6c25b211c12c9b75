package main

import (
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/config"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/urfave/cli/v2"
)

// Flag names. Each crawl/load flag overrides the matching config field when set.
const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogPretty = "log-pretty"

	flagAPITemplate    = "api-template"
	flagUserAgent      = "user-agent"
	flagTimeout        = "timeout"
	flagMaxRetries     = "max-retries"
	flagRetryBackoff   = "retry-backoff"
	flagRetryMax       = "retry-max-backoff"
	flagRPS            = "rps"
	flagConcurrency    = "concurrency"
	flagBatchSize      = "batch-size"
	flagCooldown       = "cooldown"
	flagMinBytes       = "min-artifact-bytes"
	flagReportNotFound = "report-not-found"
	flagIDsFile        = "ids-file"
	flagOutputDir      = "output-dir"
	flagLogsDir        = "logs-dir"
	flagMaxLen         = "description-max-len"
	flagRedisAddr      = "redis-addr"
	flagCacheTTL       = "cache-ttl"
	flagMetricsAddr    = "metrics-addr"
	flagPostgresDSN    = "postgres-dsn"
	flagLoadBatchSize  = "load-batch-size"
	flagSMTPHost       = "smtp-host"
	flagSMTPPort       = "smtp-port"
	flagSMTPUser       = "smtp-user"
	flagSMTPPassword   = "smtp-password"
	flagMailFrom       = "mail-from"
	flagMailTo         = "mail-to"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{"CRAWLER_CONFIG"}},
		&cli.StringFlag{Name: flagLogLevel, Usage: "log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
		&cli.BoolFlag{Name: flagLogPretty, Usage: "human-readable console logs", EnvVars: []string{"LOG_PRETTY"}},
	}
}

func pathFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagIDsFile, Usage: "identifier list, one per line", EnvVars: []string{"IDS_FILE"}},
		&cli.StringFlag{Name: flagOutputDir, Aliases: []string{"o"}, Usage: "batch artifact directory", EnvVars: []string{"OUTPUT_DIR"}},
		&cli.IntFlag{Name: flagBatchSize, Usage: "identifiers per batch", EnvVars: []string{"BATCH_SIZE"}},
		&cli.Int64Flag{Name: flagMinBytes, Usage: "artifacts smaller than this are treated as incomplete", EnvVars: []string{"MIN_ARTIFACT_BYTES"}},
	}
}

func crawlFlags() []cli.Flag {
	return append(pathFlags(),
		&cli.StringFlag{Name: flagAPITemplate, Usage: "product URL template containing {id}", EnvVars: []string{"API_TEMPLATE"}},
		&cli.StringFlag{Name: flagUserAgent, Usage: "User-Agent header", EnvVars: []string{"USER_AGENT"}},
		&cli.DurationFlag{Name: flagTimeout, Usage: "per-request timeout", EnvVars: []string{"REQUEST_TIMEOUT"}},
		&cli.IntFlag{Name: flagMaxRetries, Usage: "attempts per identifier", EnvVars: []string{"MAX_RETRIES"}},
		&cli.DurationFlag{Name: flagRetryBackoff, Usage: "wait after the first failed attempt", EnvVars: []string{"RETRY_BACKOFF"}},
		&cli.DurationFlag{Name: flagRetryMax, Usage: "maximum wait between attempts", EnvVars: []string{"RETRY_MAX_BACKOFF"}},
		&cli.Float64Flag{Name: flagRPS, Usage: "request rate limit, 0 = unlimited", EnvVars: []string{"REQUESTS_PER_SECOND"}},
		&cli.IntFlag{Name: flagConcurrency, Aliases: []string{"n"}, Usage: "requests in flight per batch", EnvVars: []string{"CONCURRENCY"}},
		&cli.DurationFlag{Name: flagCooldown, Usage: "pause between batches", EnvVars: []string{"BATCH_COOLDOWN"}},
		&cli.BoolFlag{Name: flagReportNotFound, Usage: "also write 404s to the error log", EnvVars: []string{"REPORT_NOT_FOUND"}},
		&cli.StringFlag{Name: flagLogsDir, Usage: "error log directory", EnvVars: []string{"LOGS_DIR"}},
		&cli.IntFlag{Name: flagMaxLen, Usage: "description length limit", EnvVars: []string{"DESCRIPTION_MAX_LEN"}},
		&cli.StringFlag{Name: flagRedisAddr, Usage: "Redis address for the payload cache", EnvVars: []string{"REDIS_ADDR"}},
		&cli.DurationFlag{Name: flagCacheTTL, Usage: "payload cache TTL", EnvVars: []string{"CACHE_TTL"}},
		&cli.StringFlag{Name: flagMetricsAddr, Usage: "serve /metrics on this address", EnvVars: []string{"METRICS_ADDR"}},
		&cli.StringFlag{Name: flagSMTPHost, Usage: "SMTP host for notifications", EnvVars: []string{"SMTP_HOST"}},
		&cli.IntFlag{Name: flagSMTPPort, Usage: "SMTP port", EnvVars: []string{"SMTP_PORT"}},
		&cli.StringFlag{Name: flagSMTPUser, Usage: "SMTP username", EnvVars: []string{"SMTP_USER"}},
		&cli.StringFlag{Name: flagSMTPPassword, Usage: "SMTP password", EnvVars: []string{"SMTP_PASSWORD"}},
		&cli.StringFlag{Name: flagMailFrom, Usage: "notification sender", EnvVars: []string{"MAIL_FROM"}},
		&cli.StringSliceFlag{Name: flagMailTo, Usage: "notification recipients", EnvVars: []string{"MAIL_TO"}},
	)
}

func loadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagOutputDir, Aliases: []string{"o"}, Usage: "batch artifact directory", EnvVars: []string{"OUTPUT_DIR"}},
		&cli.StringFlag{Name: flagPostgresDSN, Usage: "PostgreSQL connection string", EnvVars: []string{"POSTGRES_DSN", "DATABASE_URL"}},
		&cli.IntFlag{Name: flagLoadBatchSize, Usage: "rows per insert batch", EnvVars: []string{"LOAD_BATCH_SIZE"}},
	}
}

// loadConfig builds the configuration: defaults, then the config file, then set flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	setString(c, flagAPITemplate, &cfg.APITemplate)
	setString(c, flagUserAgent, &cfg.UserAgent)
	setDuration(c, flagTimeout, &cfg.RequestTimeout)
	setInt(c, flagMaxRetries, &cfg.MaxRetries)
	setDuration(c, flagRetryBackoff, &cfg.RetryBackoff)
	setDuration(c, flagRetryMax, &cfg.RetryMaxBackoff)
	if c.IsSet(flagRPS) {
		cfg.RequestsPerSecond = c.Float64(flagRPS)
	}
	setInt(c, flagConcurrency, &cfg.Concurrency)
	setInt(c, flagBatchSize, &cfg.BatchSize)
	setDuration(c, flagCooldown, &cfg.BatchCooldown)
	if c.IsSet(flagMinBytes) {
		cfg.MinArtifactBytes = c.Int64(flagMinBytes)
	}
	if c.IsSet(flagReportNotFound) {
		cfg.ReportNotFound = c.Bool(flagReportNotFound)
	}
	setString(c, flagIDsFile, &cfg.IDsFile)
	setString(c, flagOutputDir, &cfg.OutputDir)
	setString(c, flagLogsDir, &cfg.LogsDir)
	setInt(c, flagMaxLen, &cfg.DescriptionMaxLen)
	setString(c, flagRedisAddr, &cfg.RedisAddr)
	setDuration(c, flagCacheTTL, &cfg.CacheTTL)
	setString(c, flagMetricsAddr, &cfg.MetricsAddr)
	setString(c, flagPostgresDSN, &cfg.PostgresDSN)
	setInt(c, flagLoadBatchSize, &cfg.LoadBatchSize)
	setString(c, flagSMTPHost, &cfg.Notify.SMTPHost)
	setInt(c, flagSMTPPort, &cfg.Notify.SMTPPort)
	setString(c, flagSMTPUser, &cfg.Notify.Username)
	setString(c, flagSMTPPassword, &cfg.Notify.Password)
	setString(c, flagMailFrom, &cfg.Notify.From)
	if c.IsSet(flagMailTo) {
		cfg.Notify.To = c.StringSlice(flagMailTo)
	}

	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = logging.LogLevel(c.String(flagLogLevel))
	}
	if c.IsSet(flagLogPretty) {
		cfg.Log.Pretty = c.Bool(flagLogPretty)
	}

	return cfg, cfg.Validate()
}

func setString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}

func setInt(c *cli.Context, name string, dst *int) {
	if c.IsSet(name) {
		*dst = c.Int(name)
	}
}

func setDuration(c *cli.Context, name string, dst *time.Duration) {
	if c.IsSet(name) {
		*dst = c.Duration(name)
	}
}
