package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crawler_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy decides how often and how long to wait before repeating a failed fetch.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseBackoff is the wait after the first failed attempt; it doubles per attempt.
	BaseBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// Jitter randomizes each wait by ±Jitter (0.2 = ±20%).
	Jitter float64

	// MalformedAttempts caps attempts for unparseable 2xx bodies (0 = MaxAttempts).
	MalformedAttempts int

	// Retryable overrides the default retryable-class predicate.
	Retryable func(ErrorClass) bool
}

// DefaultRetryPolicy returns the default retry configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseBackoff:       1 * time.Second,
		MaxBackoff:        30 * time.Second,
		Jitter:            0.2,
		MalformedAttempts: 2,
	}
}

// Backoff returns the un-jittered wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		if wait > math.MaxInt64/2 {
			break
		}
		wait *= 2
		if p.MaxBackoff > 0 && wait >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		return p.MaxBackoff
	}
	return wait
}

// AttemptsFor returns the attempt limit that applies to an error class.
func (p RetryPolicy) AttemptsFor(class ErrorClass) int {
	limit := max(p.MaxAttempts, 1)
	if class == ErrorClassMalformed && p.MalformedAttempts > 0 {
		limit = min(limit, p.MalformedAttempts)
	}
	return limit
}

// ShouldRetry reports whether a failure of the given class may be retried.
func (p RetryPolicy) ShouldRetry(class ErrorClass) bool {
	if p.Retryable != nil {
		return p.Retryable(class)
	}
	return shouldRetry(class)
}

func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if p.Jitter <= 0 || d <= 0 {
		return d
	}
	j := float64(d) * (1 - p.Jitter + rand.Float64()*2*p.Jitter)
	if j >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(j)
}

// Do runs fn until it succeeds, fails with a non-retryable class, or the
// attempt limit for the failing class is reached. It returns the number of
// attempts made. Exhaustion wraps both ErrRetryExhausted and the last error.
func (p RetryPolicy) Do(ctx context.Context, logger zerolog.Logger, fn func(attempt int) error) (int, error) {
	var lastErr error
	var lastClass ErrorClass

	attempt := 1
	for ; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Debug().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err
		lastClass = ClassOf(err)

		if !p.ShouldRetry(lastClass) {
			return attempt, err
		}

		if attempt >= p.AttemptsFor(lastClass) {
			break
		}

		retriesTotal.WithLabelValues(string(lastClass)).Inc()

		wait := p.jittered(p.Backoff(attempt))
		retryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Warn().
		Str("error_class", string(lastClass)).
		Int("attempts", attempt).
		Msg("Retry attempts exhausted")

	return attempt, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
}
