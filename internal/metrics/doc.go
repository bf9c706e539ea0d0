// Package metrics provides real-time measurement of circuit breaker
// activity.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Attempted upstream calls with response times and status codes
//   - Calls rejected by open circuits
//   - Circuit state transitions
//   - Health probe results
//
// Events are published with non-blocking semantics so measurement never
// stalls the request path; the collector goroutine feeds both an in-memory
// aggregate store (percentiles, status code distribution) and a Prometheus
// recorder. Aggregates are served as JSON merged with the breaker
// snapshots, Prometheus metrics through the usual scrape endpoint.
//
// Example usage:
//
//	recorder := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
//	collector := metrics.NewCollector(1000, recorder, logger)
//	collector.Start(ctx)
//
//	collector.Publish(metrics.Event{
//		Type:       metrics.EventCallCompleted,
//		Host:       "api.example.com",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
// The collector drains pending events on shutdown to prevent data loss.
package metrics
