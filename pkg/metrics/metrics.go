// Package metrics documents the Prometheus metrics of the exporter and writes
// them out at the end of a run. Metrics are defined in their own packages
// (client, cache, ratelimit, pagination, export) via promauto.
//
// The exporter is a batch job with nothing to scrape, so a run can leave a
// snapshot in the node_exporter textfile format instead (--metrics-file).
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source of snapshots written by WriteTextfile.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes a snapshot of all metrics to path, creating parent
// directories as needed. The file is replaced atomically.
func WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - readwise_requests_total{status} (Counter): List requests by HTTP status ("network_error" for transport failures)
//   - readwise_request_duration_seconds (Histogram): List request duration
//   - readwise_page_results_total{kind} (Counter): Responses by kind (success, throttled, api_error)
//
// Retry Metrics (pkg/client):
//   - readwise_retries_total{error_class} (Counter): Transport retry attempts
//   - readwise_retry_backoff_seconds{error_class} (Histogram): Backoff before each retry
//   - readwise_retry_exhausted_total{error_class} (Counter): Requests that used every attempt
//
// Throttle Metrics (pkg/ratelimit):
//   - readwise_throttle_waits_total (Counter): Waits caused by throttling notices
//   - readwise_throttle_wait_seconds (Histogram): Server-specified wait durations
//   - readwise_throttle_limit_exceeded_total (Counter): Walks aborted by a configured wait limit
//
// Cache Metrics (pkg/cache):
//   - readwise_cache_hits_total{backend} (Counter): Pages served from the cache
//   - readwise_cache_misses_total{backend} (Counter): Pages not yet cached
//   - readwise_cache_writes_total{backend} (Counter): Page responses stored
//   - readwise_cache_size_bytes{backend} (Gauge): Bytes stored during this run
//   - readwise_cache_errors_total{operation} (Counter): Cache failures by operation (open, get, set)
//
// Walk Metrics (pkg/pagination):
//   - readwise_pages_total{source} (Counter): Pages walked from "cache" or "network"
//   - readwise_documents_total (Counter): Documents yielded
//
// Export Metrics (pkg/export):
//   - readwise_export_records_total{format, outcome} (Counter): Records written or skipped as duplicates
//   - readwise_export_indexed_records{format} (Gauge): Records indexed from the existing file
//
// Example Queries:
//
//   # Share of pages replayed from the cache
//   readwise_pages_total{source="cache"} / ignoring(source) sum(readwise_pages_total)
//
//   # Time lost to throttling
//   readwise_throttle_wait_seconds_sum
//
//   # Duplicates skipped in the last run
//   readwise_export_records_total{outcome="skipped"}
