// Package metrics exposes the crawler's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, engine,
// driver, cache, ratelimit, artifact, warehouse) to maintain modularity
// and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the crawler.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry scraped by Handler.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Fetch Metrics (pkg/client):
//   - crawler_requests_total{status} (Counter): Requests by HTTP status or transport error class
//   - crawler_request_duration_seconds (Histogram): Request duration
//   - crawler_errors_total{class} (Counter): Errors by class (network, timeout, server, malformed, not_found, client)
//   - crawler_outcomes_total{kind} (Counter): Terminal identifier outcomes
//
// Retry Metrics (pkg/client):
//   - crawler_retries_total{error_class} (Counter): Retry attempts by error class
//   - crawler_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - crawler_retry_exhausted_total{error_class} (Counter): Identifiers that exhausted their attempts
//
// Batch Metrics (pkg/engine, pkg/driver, pkg/artifact):
//   - crawler_gate_inflight (Gauge): Fetches holding an admission slot
//   - crawler_batch_fetch_duration_seconds (Histogram): Time to fetch one batch
//   - crawler_report_failures_total (Counter): Failure log writes that failed
//   - crawler_batches_total{result} (Counter): Batches processed, skipped or interrupted
//   - crawler_identifiers_total{outcome} (Counter): Identifiers of processed batches
//   - crawler_last_completed_batch (Gauge): Most recently written batch index
//   - crawler_artifacts_written_total (Counter): Artifact files written
//   - crawler_artifact_bytes_total (Counter): Artifact bytes written
//
// Cache Metrics (pkg/cache):
//   - crawler_cache_hits_total (Counter): Payload cache hits
//   - crawler_cache_misses_total (Counter): Payload cache misses
//   - crawler_cache_size_bytes (Counter): Bytes written to the cache
//   - crawler_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacing Metrics (pkg/ratelimit):
//   - crawler_ratelimit_rate (Gauge): Current requests-per-second allowance
//   - crawler_ratelimit_throttles_total (Counter): Throttling responses seen
//   - crawler_ratelimit_wait_seconds (Histogram): Time spent waiting for a request slot
//
// Warehouse Metrics (pkg/warehouse):
//   - crawler_warehouse_rows_total{result} (Counter): Rows inserted or skipped
//
// Example Prometheus Queries:
//
//   # Success ratio
//   sum(rate(crawler_outcomes_total{kind="success"}[5m])) / sum(rate(crawler_outcomes_total[5m]))
//
//   # Retry pressure by class
//   rate(crawler_retries_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(crawler_request_duration_seconds_bucket[5m]))
