// Package driver sequences batches through checkpoint inspection, fetching and persistence.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/checkpoint"
	"github.com/Sternrassler/catalog-crawler/pkg/engine"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/Sternrassler/catalog-crawler/pkg/product"
	"github.com/Sternrassler/catalog-crawler/pkg/source"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the batch loop.
var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_batches_total",
		Help: "Batches by result",
	}, []string{"result"}) // "processed", "skipped", "interrupted"

	identifiersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_identifiers_total",
		Help: "Identifiers of processed batches by outcome",
	}, []string{"outcome"})

	lastBatch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_last_completed_batch",
		Help: "Index of the most recently written batch",
	})
)

// BatchRunner fetches one batch. *engine.Engine implements it.
type BatchRunner interface {
	Run(ctx context.Context, batch source.Batch) (*engine.Result, error)
}

// Writer persists batch artifacts. *artifact.Writer implements it.
type Writer interface {
	Dir() string
	Write(index int, records []product.Record) error
}

// Config holds driver configuration.
type Config struct {
	// BatchSize is the number of identifiers per batch
	BatchSize int

	// MinArtifactBytes is the validity threshold for existing artifacts
	MinArtifactBytes int64

	// Cooldown is the pause between two processed batches
	Cooldown time.Duration
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:        1000,
		MinArtifactBytes: checkpoint.DefaultMinBytes,
		Cooldown:         200 * time.Millisecond,
	}
}

// Summary describes one run.
type Summary struct {
	RunID        string
	TotalIDs     int
	TotalBatches int
	Skipped      int
	Processed    int
	Attempted    int
	Succeeded    int
	NotFound     int
	Rejected     int
	Failed       int
	FromCache    int
	Interrupted  bool
	Duration     time.Duration
}

// AvgBatchSeconds returns the mean wall time of processed batches.
func (s Summary) AvgBatchSeconds() float64 {
	if s.Processed == 0 {
		return 0
	}
	return s.Duration.Seconds() / float64(s.Processed)
}

// Remaining returns the number of batches not yet complete.
func (s Summary) Remaining() int {
	return s.TotalBatches - s.Skipped - s.Processed
}

// Driver runs the batch loop.
type Driver struct {
	runner BatchRunner
	writer Writer
	config Config
}

// New creates a new driver.
func New(runner BatchRunner, writer Writer, config Config) *Driver {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.MinArtifactBytes <= 0 {
		config.MinArtifactBytes = checkpoint.DefaultMinBytes
	}
	return &Driver{
		runner: runner,
		writer: writer,
		config: config,
	}
}

// Run processes every batch of ids in ascending order, skipping batches
// whose artifact is already complete. Completion is re-derived from the
// output directory on every call.
//
// A cancelled context stops the loop with Summary.Interrupted set and
// ctx.Err() returned; the interrupted batch is not written. An artifact
// write failure aborts the run.
func (d *Driver) Run(ctx context.Context, ids []string) (*Summary, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := logging.NewLogger("driver").With().
		Str("run_id", runID).
		Logger()

	batches := source.Partition(ids, d.config.BatchSize)
	summary := &Summary{
		RunID:        runID,
		TotalIDs:     len(ids),
		TotalBatches: len(batches),
	}

	snap, err := checkpoint.Inspect(d.writer.Dir(), d.config.MinArtifactBytes)
	if err != nil {
		return summary, fmt.Errorf("inspect checkpoint: %w", err)
	}

	if invalid := snap.Invalid(); len(invalid) > 0 {
		logger.Warn().
			Ints("batches", invalid).
			Msg("Found incomplete artifacts, they will be fetched again")
	}

	logger.Info().
		Int("identifiers", len(ids)).
		Int("batches", len(batches)).
		Int("batch_size", d.config.BatchSize).
		Str("output_dir", d.writer.Dir()).
		Msg("Starting run")

	pendingBefore := false
	for _, batch := range batches {
		if snap.IsComplete(batch.Index) {
			summary.Skipped++
			batchesTotal.WithLabelValues("skipped").Inc()
			logger.Debug().Int("batch", batch.Index).Msg("Batch already complete, skipping")
			continue
		}

		if pendingBefore && d.config.Cooldown > 0 {
			if err := sleep(ctx, d.config.Cooldown); err != nil {
				return d.interrupt(summary, start, logger, batch.Index, err)
			}
		}
		pendingBefore = true

		res, err := d.runner.Run(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return d.interrupt(summary, start, logger, batch.Index, ctx.Err())
			}
			return d.finish(summary, start), fmt.Errorf("batch %d: %w", batch.Index, err)
		}

		if err := d.writer.Write(batch.Index, res.Records); err != nil {
			logger.Error().
				Err(err).
				Int("batch", batch.Index).
				Msg("Failed to write artifact")
			return d.finish(summary, start), fmt.Errorf("write batch %d: %w", batch.Index, err)
		}

		d.account(summary, res)
		lastBatch.Set(float64(batch.Index))

		logger.Info().
			Int("batch", batch.Index).
			Int("of", len(batches)).
			Int("succeeded", res.Succeeded).
			Int("ids", res.Total).
			Int("failed", res.Failed).
			Int("not_found", res.NotFound).
			Int("done_batches", summary.Skipped+summary.Processed).
			Dur("duration", res.Duration).
			Msg("Batch complete")
	}

	d.finish(summary, start)
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("attempted", summary.Attempted).
		Int("total_ids", summary.TotalIDs).
		Int("processed_batches", summary.Processed).
		Int("skipped_batches", summary.Skipped).
		Float64("avg_batch_seconds", summary.AvgBatchSeconds()).
		Dur("duration", summary.Duration).
		Msg("Run complete")

	return summary, nil
}

func (d *Driver) account(summary *Summary, res *engine.Result) {
	summary.Processed++
	summary.Attempted += res.Total
	summary.Succeeded += res.Succeeded
	summary.NotFound += res.NotFound
	summary.Rejected += res.Rejected
	summary.Failed += res.Failed
	summary.FromCache += res.FromCache

	batchesTotal.WithLabelValues("processed").Inc()
	identifiersTotal.WithLabelValues("success").Add(float64(res.Succeeded))
	identifiersTotal.WithLabelValues("not_found").Add(float64(res.NotFound))
	identifiersTotal.WithLabelValues("client_rejected").Add(float64(res.Rejected))
	identifiersTotal.WithLabelValues("failed").Add(float64(res.Failed))
}

func (d *Driver) interrupt(summary *Summary, start time.Time, logger zerolog.Logger, batch int, err error) (*Summary, error) {
	summary.Interrupted = true
	batchesTotal.WithLabelValues("interrupted").Inc()
	d.finish(summary, start)

	logger.Warn().
		Int("batch", batch).
		Int("processed_batches", summary.Processed).
		Int("remaining_batches", summary.Remaining()).
		Msg("Run interrupted, output directory is resumable")
	return summary, err
}

func (d *Driver) finish(summary *Summary, start time.Time) *Summary {
	summary.Duration = time.Since(start)
	return summary
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsInterrupted reports whether err ended a run through cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
