package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/latbench/internal/measurement"
	"github.com/torosent/latbench/internal/sampler"
)

// Exporter exposes run progress as Prometheus metrics on its own registry.
type Exporter struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   prometheus.Histogram
	trials    *prometheus.CounterVec
	mean      prometheus.Gauge
	precision prometheus.Gauge
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latbench_requests_total",
			Help: "Requests issued, by response status code",
		}, []string{"status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "latbench_request_duration_seconds",
			Help:    "Latency distribution of issued requests",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latbench_trials_total",
			Help: "Trials run, by outcome (informative or dropped)",
		}, []string{"outcome"}),
		mean: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latbench_mean_seconds",
			Help: "Running mean of informative trial values",
		}),
		precision: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latbench_precision_percent",
			Help: "Current confidence interval half-width as a percentage of the mean",
		}),
	}
	e.registry.MustRegister(
		e.requests, e.latency, e.trials, e.mean, e.precision,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// Registry returns the registry the exporter's metrics live in.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// RecordBatch counts requests by status and observes their latency.
func (e *Exporter) RecordBatch(batch measurement.Batch) {
	for _, m := range batch {
		e.requests.WithLabelValues(strconv.Itoa(m.StatusCode)).Inc()
		e.latency.Observe(m.Elapsed.Seconds())
	}
}

// TrialFinished implements sampler.Observer.
func (e *Exporter) TrialFinished(p sampler.Progress) {
	if p.Dropped {
		e.trials.WithLabelValues("dropped").Inc()
		return
	}
	e.trials.WithLabelValues("informative").Inc()
	e.mean.Set(p.Mean)
	if p.Iteration >= 2 {
		e.precision.Set(p.Precision)
	}
}

// RunFinished implements sampler.Observer.
func (e *Exporter) RunFinished(res sampler.Result) {
	e.mean.Set(res.Mean)
	e.precision.Set(res.Precision)
}
