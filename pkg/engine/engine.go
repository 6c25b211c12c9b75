package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/client"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/Sternrassler/catalog-crawler/pkg/product"
	"github.com/Sternrassler/catalog-crawler/pkg/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prometheus metrics for batch fetching.
var (
	gateInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_gate_inflight",
		Help: "Fetches currently holding an admission gate slot",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_batch_fetch_duration_seconds",
		Help:    "Time to fetch all identifiers of a batch",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	reportFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_report_failures_total",
		Help: "Failure reports that could not be written",
	})
)

// Fetcher retrieves one identifier. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, id string) client.Outcome
}

// FailureReporter records non-success outcomes. Errors it returns are logged and ignored.
type FailureReporter interface {
	Report(batch int, id, reason string) error
}

// Config holds engine configuration
type Config struct {
	// Concurrency is the maximum number of fetches in flight
	Concurrency int

	// ProgressEvery logs progress after this many completions (0 disables)
	ProgressEvery int

	// ReportNotFound also reports 404 outcomes to the FailureReporter
	ReportNotFound bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   50,
		ProgressEvery: 100,
	}
}

// Result summarizes one batch run.
type Result struct {
	Batch     int
	Records   []product.Record
	Total     int
	Succeeded int
	NotFound  int
	Rejected  int
	Failed    int
	FromCache int
	Cancelled int
	Duration  time.Duration
}

// Engine runs batches through a Fetcher.
type Engine struct {
	fetcher  Fetcher
	reporter FailureReporter
	config   Config
	logger   zerolog.Logger
}

// New creates a new engine. reporter may be nil.
func New(fetcher Fetcher, reporter FailureReporter, config Config) *Engine {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Engine{
		fetcher:  fetcher,
		reporter: reporter,
		config:   config,
		logger:   logging.NewLogger("engine"),
	}
}

// Run fetches every identifier of batch and returns the successful records
// in completion order. All spawned fetches are joined before Run returns.
// The only error is ctx.Err() when the context ends before the batch finishes.
func (e *Engine) Run(ctx context.Context, batch source.Batch) (*Result, error) {
	start := time.Now()
	total := len(batch.IDs)
	logger := e.logger.With().Int("batch", batch.Index).Logger()

	res := &Result{
		Batch:   batch.Index,
		Records: make([]product.Record, 0, total),
		Total:   total,
	}

	logger.Debug().
		Int("ids", total).
		Int("concurrency", e.config.Concurrency).
		Msg("Starting batch fetch")

	gate := NewGate(e.config.Concurrency)
	outcomes := make(chan client.Outcome, total)

	var group errgroup.Group
	for _, id := range batch.IDs {
		group.Go(func() error {
			if err := gate.Acquire(ctx); err != nil {
				outcomes <- client.Outcome{
					ID:   id,
					Kind: client.OutcomeFailed,
					Err:  fmt.Errorf("%w: %v", client.ErrContextCancelled, err),
				}
				return nil
			}
			defer gate.Release()
			outcomes <- e.fetcher.Fetch(ctx, id)
			return nil
		})
	}

	for done := 1; done <= total; done++ {
		out := <-outcomes
		e.collect(res, out, batch.Index, logger)

		if e.config.ProgressEvery > 0 && done%e.config.ProgressEvery == 0 && done < total {
			logger.Info().
				Int("done", done).
				Int("total", total).
				Int("succeeded", res.Succeeded).
				Float64("progress_pct", float64(done)/float64(total)*100).
				Msg("Batch progress")
		}
	}
	_ = group.Wait()

	res.Duration = time.Since(start)
	batchDuration.Observe(res.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		logger.Warn().
			Int("succeeded", res.Succeeded).
			Int("cancelled", res.Cancelled).
			Msg("Batch interrupted")
		return res, err
	}

	logger.Debug().
		Int("succeeded", res.Succeeded).
		Int("total", total).
		Int("peak_inflight", gate.Peak()).
		Dur("duration", res.Duration).
		Msg("Batch fetch complete")

	return res, nil
}

func (e *Engine) collect(res *Result, out client.Outcome, batch int, logger zerolog.Logger) {
	if out.FromCache {
		res.FromCache++
	}

	switch out.Kind {
	case client.OutcomeSuccess:
		res.Succeeded++
		res.Records = append(res.Records, out.Record)
		return
	case client.OutcomeNotFound:
		res.NotFound++
		if !e.config.ReportNotFound {
			return
		}
	case client.OutcomeClientRejected:
		res.Rejected++
	default:
		if out.Cancelled() {
			res.Cancelled++
			return
		}
		res.Failed++
	}

	e.report(batch, out, logger)
}

// report never propagates reporter failures.
func (e *Engine) report(batch int, out client.Outcome, logger zerolog.Logger) {
	if e.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			reportFailuresTotal.Inc()
			logger.Error().
				Interface("panic", r).
				Str("id", out.ID).
				Msg("Failure reporter panicked")
		}
	}()
	if err := e.reporter.Report(batch, out.ID, out.Reason()); err != nil {
		reportFailuresTotal.Inc()
		logger.Warn().
			Err(err).
			Str("id", out.ID).
			Msg("Failed to record fetch failure")
	}
}
