package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	currentRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_ratelimit_rate",
		Help: "Current request rate allowance (requests per second)",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_ratelimit_throttles_total",
		Help: "Total number of throttling responses that reduced the request rate",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_ratelimit_wait_seconds",
		Help:    "Time spent waiting for the rate limiter",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// Config tunes the adaptive limiter.
type Config struct {
	// RequestsPerSecond is the starting and maximum rate. Zero disables pacing.
	RequestsPerSecond float64

	// MinRequestsPerSecond is the floor a throttled rate can fall to.
	MinRequestsPerSecond float64

	// IncreaseStep is added to the rate after IncreaseEvery successes.
	IncreaseStep  float64
	IncreaseEvery int

	// Backoff multiplies the rate on throttling (0 < Backoff < 1).
	Backoff float64

	// CoolOff blocks all requests after a throttling response.
	CoolOff time.Duration
}

// DefaultConfig returns the defaults for a given request rate.
func DefaultConfig(rps float64) Config {
	return Config{
		RequestsPerSecond:    rps,
		MinRequestsPerSecond: rps / 10,
		IncreaseStep:         rps / 20,
		IncreaseEvery:        20,
		Backoff:              0.5,
		CoolOff:              2 * time.Second,
	}
}

// Limiter paces requests. A nil *Limiter never blocks.
type Limiter struct {
	mu        sync.Mutex
	lim       *rate.Limiter
	curr      rate.Limit
	min, max  rate.Limit
	step      rate.Limit
	every     int
	okCount   int
	backoff   float64
	coolOff   time.Duration
	coolUntil time.Time
	logger    zerolog.Logger
}

// New creates a limiter. It returns nil when cfg.RequestsPerSecond <= 0.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.MinRequestsPerSecond <= 0 || cfg.MinRequestsPerSecond > cfg.RequestsPerSecond {
		cfg.MinRequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.IncreaseEvery <= 0 {
		cfg.IncreaseEvery = 1
	}
	if cfg.Backoff <= 0 || cfg.Backoff >= 1 {
		cfg.Backoff = 0.5
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	currentRate.Set(cfg.RequestsPerSecond)
	return &Limiter{
		lim:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		curr:    rate.Limit(cfg.RequestsPerSecond),
		min:     rate.Limit(cfg.MinRequestsPerSecond),
		max:     rate.Limit(cfg.RequestsPerSecond),
		step:    rate.Limit(cfg.IncreaseStep),
		every:   cfg.IncreaseEvery,
		backoff: cfg.Backoff,
		coolOff: cfg.CoolOff,
		logger:  logging.NewLogger("ratelimit"),
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	start := time.Now()
	defer func() { waitSeconds.Observe(time.Since(start).Seconds()) }()

	l.mu.Lock()
	cool := l.coolUntil
	lim := l.lim
	l.mu.Unlock()

	if d := time.Until(cool); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lim.Wait(ctx)
}

// OnSuccess records a successful response.
func (l *Limiter) OnSuccess() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.okCount++
	if l.okCount < l.every {
		return
	}
	l.okCount = 0

	next := l.curr + l.step
	if next > l.max {
		next = l.max
	}
	if next != l.curr {
		l.curr = next
		l.lim.SetLimit(next)
		currentRate.Set(float64(next))
	}
}

// OnThrottle records a throttling response.
func (l *Limiter) OnThrottle() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	next := rate.Limit(float64(l.curr) * l.backoff)
	if next < l.min {
		next = l.min
	}
	if next != l.curr {
		l.curr = next
		l.lim.SetLimit(next)
		currentRate.Set(float64(next))
	}
	l.okCount = 0
	l.coolUntil = time.Now().Add(l.coolOff)
	throttlesTotal.Inc()

	l.logger.Warn().
		Float64("rate", float64(next)).
		Dur("cool_off", l.coolOff).
		Msg("Server throttling detected, slowing down")
}

// State returns the current limiter state.
func (l *Limiter) State() State {
	if l == nil {
		return State{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Rate:      float64(l.curr),
		Min:       float64(l.min),
		Max:       float64(l.max),
		CoolUntil: l.coolUntil,
	}
}
