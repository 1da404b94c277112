// Package metrics provides the centralized Prometheus registry reference
// for the rollingrequests library. All metrics are defined in their
// respective packages (rolling, cache) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the library.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Executor Metrics (pkg/rolling):
//   - rolling_requests_total{method, status} (Counter): Dispatched requests by method
//     and outcome; status is the HTTP status code, "cached", "request_error",
//     "timeout_error" or "network_error"
//   - rolling_request_duration_seconds{method} (Histogram): Per-request duration
//   - rolling_window_duration_seconds (Histogram): Full window execution duration
//   - rolling_windows_total (Counter): Executed dispatch windows
//   - rolling_queue_depth (Gauge): Pending requests currently queued
//   - rolling_task_failures_total (Counter): Dispatch tasks that failed outside the HTTP call
//   - rolling_errors_total{class} (Counter): Per-request errors by class (request, timeout, network)
//
// Cache Metrics (pkg/cache):
//   - rolling_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - rolling_cache_misses_total (Counter): Cache misses
//   - rolling_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - rolling_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(rolling_cache_hits_total[5m])) /
//   (sum(rate(rolling_cache_hits_total[5m])) + sum(rate(rolling_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(rolling_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(rolling_request_duration_seconds_bucket[5m]))
//
//   # Queue Backlog
//   rolling_queue_depth
