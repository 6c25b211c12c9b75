// Command catalog-crawler fetches product records for a list of identifiers
// into resumable per-batch JSON artifacts and loads them into PostgreSQL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/artifact"
	"github.com/Sternrassler/catalog-crawler/pkg/cache"
	"github.com/Sternrassler/catalog-crawler/pkg/checkpoint"
	"github.com/Sternrassler/catalog-crawler/pkg/client"
	"github.com/Sternrassler/catalog-crawler/pkg/config"
	"github.com/Sternrassler/catalog-crawler/pkg/driver"
	"github.com/Sternrassler/catalog-crawler/pkg/engine"
	"github.com/Sternrassler/catalog-crawler/pkg/errlog"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/Sternrassler/catalog-crawler/pkg/metrics"
	"github.com/Sternrassler/catalog-crawler/pkg/notify"
	"github.com/Sternrassler/catalog-crawler/pkg/ratelimit"
	"github.com/Sternrassler/catalog-crawler/pkg/source"
	"github.com/Sternrassler/catalog-crawler/pkg/warehouse"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// exitInterrupted is the exit status of a run stopped by a signal.
const exitInterrupted = 130

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "catalog-crawler: %v\n", err)
		if driver.IsInterrupted(err) {
			os.Exit(exitInterrupted)
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "catalog-crawler",
		Usage: "resumable batch crawler for a product JSON API",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			{
				Name:   "crawl",
				Usage:  "fetch every pending batch into the output directory",
				Flags:  crawlFlags(),
				Action: crawlAction,
			},
			{
				Name:   "status",
				Usage:  "show complete, invalid and pending batches",
				Flags:  pathFlags(),
				Action: statusAction,
			},
			{
				Name:   "load",
				Usage:  "load batch artifacts into PostgreSQL",
				Flags:  loadFlags(),
				Action: loadAction,
			},
		},
	}
}

func setup(c *cli.Context) (config.Config, zerolog.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	cfg.Log.Output = c.App.ErrWriter
	logging.Setup(cfg.Log)
	return cfg, logging.NewLogger("main"), nil
}

func crawlAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Serve(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ids, err := source.ReadFile(cfg.IDsFile)
	if err != nil {
		return err
	}

	clientCfg := cfg.Client()
	if limiter := ratelimit.New(cfg.RateLimit()); limiter != nil {
		clientCfg.Limiter = limiter
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable, running without payload cache")
		} else {
			clientCfg.Cache = cache.NewManager(redisClient, cfg.CacheTTL)
			logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("Payload cache enabled")
		}
	}

	apiClient, err := client.New(clientCfg)
	if err != nil {
		return err
	}

	errLog, err := errlog.Open(cfg.LogsDir)
	if err != nil {
		return err
	}
	defer errLog.Close()

	eng := engine.New(apiClient, errLog, cfg.Engine())
	d := driver.New(eng, artifact.NewWriter(cfg.OutputDir), cfg.Driver())

	summary, runErr := d.Run(ctx, ids)

	notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	notify.Send(notifyCtx, newNotifier(cfg), notify.ForRun(summary, runErr))

	fmt.Fprintf(c.App.Writer, "run %s: %d/%d identifiers succeeded, %d batches processed, %d skipped, %d remaining\n",
		summary.RunID, summary.Succeeded, summary.Attempted, summary.Processed, summary.Skipped, summary.Remaining())

	return runErr
}

func newNotifier(cfg config.Config) notify.Notifier {
	if cfg.Notify.SMTPHost == "" {
		return notify.NewLog()
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Username: cfg.Notify.Username,
		Password: cfg.Notify.Password,
		From:     cfg.Notify.From,
		To:       cfg.Notify.To,
	})
}

func statusAction(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}

	ids, err := source.ReadFile(cfg.IDsFile)
	if err != nil {
		return err
	}
	batches := len(source.Partition(ids, cfg.BatchSize))

	snap, err := checkpoint.Inspect(cfg.OutputDir, cfg.MinArtifactBytes)
	if err != nil {
		return err
	}
	sum := snap.Summarize(batches)

	fmt.Fprintf(c.App.Writer, "identifiers: %d\n", len(ids))
	fmt.Fprintf(c.App.Writer, "batches:     %d (batch size %d)\n", batches, cfg.BatchSize)
	fmt.Fprintf(c.App.Writer, "complete:    %d\n", sum.Complete)
	fmt.Fprintf(c.App.Writer, "invalid:     %d\n", sum.Invalid)
	fmt.Fprintf(c.App.Writer, "pending:     %d\n", sum.Pending)
	return nil
}

func loadAction(c *cli.Context) error {
	cfg, _, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("--%s is required", flagPostgresDSN)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := warehouse.Open(ctx, warehouse.Config{
		DSN:       cfg.PostgresDSN,
		ChunkSize: cfg.LoadBatchSize,
	})
	if err != nil {
		return err
	}
	defer loader.Close()

	if err := loader.EnsureSchema(ctx); err != nil {
		return err
	}

	stats, err := loader.LoadDir(ctx, cfg.OutputDir)
	fmt.Fprintf(c.App.Writer, "files: %d (unreadable %d), records: %d, inserted: %d, duplicates: %d, skipped: %d\n",
		stats.Files, stats.BadFiles, stats.Records, stats.Inserted, stats.Duplicates, stats.SkippedRows)
	return err
}
