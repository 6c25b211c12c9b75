// Package client fetches single product payloads from the remote JSON API
// with error classification and an explicit retry policy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-crawler/pkg/cache"
	"github.com/Sternrassler/catalog-crawler/pkg/logging"
	"github.com/Sternrassler/catalog-crawler/pkg/normalize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_requests_total",
		Help: "Total API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_errors_total",
		Help: "Total fetch errors by class",
	}, []string{"class"})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_outcomes_total",
		Help: "Terminal identifier outcomes by kind",
	}, []string{"kind"})
)

// IDPlaceholder is substituted with the identifier in URL templates.
const IDPlaceholder = "{id}"

// Default request header values.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAccept         = "application/json, text/plain, */*"
	DefaultAcceptLanguage = "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// PayloadCache stores raw response bodies by identifier.
type PayloadCache interface {
	Get(ctx context.Context, id string) ([]byte, error)
	Set(ctx context.Context, id string, body []byte) error
}

// Waiter paces outgoing requests.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Feedback is implemented by adaptive limiters that react to server pressure.
type Feedback interface {
	OnSuccess()
	OnThrottle()
}

// Config holds the client configuration.
type Config struct {
	// URLTemplate is the endpoint URL with IDPlaceholder in place of the identifier.
	URLTemplate string

	// Request headers sent with every attempt.
	UserAgent      string
	AcceptLanguage string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// Retry is the per-identifier retry policy.
	Retry RetryPolicy

	// DescriptionMaxLen limits normalized descriptions (characters).
	DescriptionMaxLen int

	// HTTPClient overrides the transport (optional).
	HTTPClient *http.Client

	// Cache short-circuits the network for recently fetched identifiers (optional).
	Cache PayloadCache

	// Limiter paces request attempts (optional).
	Limiter Waiter
}

// DefaultConfig returns a safe default configuration for urlTemplate.
func DefaultConfig(urlTemplate string) Config {
	return Config{
		URLTemplate:       urlTemplate,
		UserAgent:         DefaultUserAgent,
		AcceptLanguage:    DefaultAcceptLanguage,
		Timeout:           15 * time.Second,
		Retry:             DefaultRetryPolicy(),
		DescriptionMaxLen: normalize.DefaultMaxLen,
	}
}

// Client fetches and normalizes one product per call. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if !strings.Contains(cfg.URLTemplate, IDPlaceholder) {
		return nil, fmt.Errorf("url template must contain %s", IDPlaceholder)
	}
	if _, err := url.Parse(strings.ReplaceAll(cfg.URLTemplate, IDPlaceholder, "0")); err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 256,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logging.NewLogger("client"),
	}, nil
}

// URL returns the request URL for an identifier.
func (c *Client) URL(id string) string {
	return strings.ReplaceAll(c.config.URLTemplate, IDPlaceholder, url.PathEscape(id))
}

// Fetch retrieves one identifier and classifies the terminal outcome.
// It never returns an error: every failure is described by the Outcome.
func (c *Client) Fetch(ctx context.Context, id string) Outcome {
	logger := c.logger.With().Str("id", id).Logger()

	if out, ok := c.fromCache(ctx, logger, id); ok {
		outcomesTotal.WithLabelValues(string(out.Kind)).Inc()
		return out
	}

	var (
		payload normalize.Payload
		body    []byte
		status  int
	)

	attempts, err := c.config.Retry.Do(ctx, logger, func(attempt int) error {
		var attemptErr error
		payload, body, status, attemptErr = c.attempt(ctx, logger, id, attempt)
		return attemptErr
	})

	out := Outcome{ID: id, StatusCode: status, Attempts: attempts, Err: err}
	switch class := ClassOf(err); {
	case err == nil:
		out.Kind = OutcomeSuccess
		out.Record = normalize.Normalize(payload, c.config.DescriptionMaxLen)
		c.storeCache(ctx, logger, id, body)
	case errors.Is(err, ErrRetryExhausted), errors.Is(err, ErrContextCancelled):
		out.Kind = OutcomeFailed
	case class == ErrorClassNotFound:
		out.Kind = OutcomeNotFound
	case class == ErrorClassClient:
		out.Kind = OutcomeClientRejected
	default:
		out.Kind = OutcomeFailed
	}

	outcomesTotal.WithLabelValues(string(out.Kind)).Inc()
	return out
}

// attempt issues one request. A nil error means the body decoded into a JSON object.
func (c *Client) attempt(ctx context.Context, logger zerolog.Logger, id string, attempt int) (normalize.Payload, []byte, int, error) {
	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.URL(id), nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", DefaultAccept)
	if c.config.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", c.config.AcceptLanguage)
	}

	logger.Debug().Int("attempt", attempt).Msg("Executing request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, 0, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		class := classifyTransport(err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(string(class)).Inc()
		return nil, nil, 0, &FetchError{ErrorClass: class, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	c.feedback(status)

	if status != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		class := classifyStatus(status)
		errorsTotal.WithLabelValues(string(class)).Inc()
		logger.Debug().
			Int("status", status).
			Str("error_class", string(class)).
			Msg("Error classified")
		return nil, nil, status, &FetchError{StatusCode: status, ErrorClass: class, Message: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, status, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		class := classifyTransport(err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		return nil, nil, status, &FetchError{StatusCode: status, ErrorClass: class, Message: "read body", Err: err}
	}

	payload, err := decodePayload(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
		return nil, nil, status, &FetchError{
			StatusCode: status,
			ErrorClass: ErrorClassMalformed,
			Message:    "invalid JSON: " + snippet(body, 200),
			Err:        err,
		}
	}

	return payload, body, status, nil
}

func (c *Client) feedback(status int) {
	fb, ok := c.config.Limiter.(Feedback)
	if !ok {
		return
	}
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		fb.OnThrottle()
	case status == http.StatusOK:
		fb.OnSuccess()
	}
}

func (c *Client) fromCache(ctx context.Context, logger zerolog.Logger, id string) (Outcome, bool) {
	if c.config.Cache == nil {
		return Outcome{}, false
	}

	body, err := c.config.Cache.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		return Outcome{}, false
	}

	payload, err := decodePayload(body)
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring undecodable cache entry")
		return Outcome{}, false
	}

	logger.Debug().Msg("Serving payload from cache")
	return Outcome{
		ID:         id,
		Kind:       OutcomeSuccess,
		Record:     normalize.Normalize(payload, c.config.DescriptionMaxLen),
		StatusCode: http.StatusOK,
		FromCache:  true,
	}, true
}

func (c *Client) storeCache(ctx context.Context, logger zerolog.Logger, id string, body []byte) {
	if c.config.Cache == nil || len(body) == 0 {
		return
	}
	if err := c.config.Cache.Set(ctx, id, body); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache payload")
	}
}

// decodePayload decodes a JSON object, keeping numbers as json.Number.
func decodePayload(body []byte) (normalize.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload normalize.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("body is not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return payload, nil
}

func snippet(body []byte, n int) string {
	s := strings.ToValidUTF8(string(body), "")
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
