// Package metrics aggregates latbench measurements.
//
// The [Collector] keeps an HDR histogram of every recorded latency plus
// per-status counts and renders them as [Stats] for the final report:
//
//	collector := metrics.NewCollector()
//	collector.RecordBatch(batch)
//	stats := collector.Stats(elapsed)
//
// The [Exporter] publishes the same measurements, together with the sampler's
// running mean and precision, as Prometheus metrics:
//
//	exporter := metrics.NewExporter()
//	http.Handle("/metrics", exporter.Handler())
//
// Both types are safe for concurrent use and satisfy the batch sink contract
// used by the standard trial.
package metrics
