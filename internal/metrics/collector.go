package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/latbench/internal/measurement"
)

// Collector aggregates every measurement of a run in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	batches    int64
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	statuses   map[int]int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Batches        int64         `json:"batches" yaml:"batches"`
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64        `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64        `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64        `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64        `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64        `json:"duration_ms" yaml:"duration_ms"`
	StatusCodes   map[string]int `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:     h,
		statuses: make(map[int]int64),
	}
}

// RecordBatch records every measurement of a batch.
func (c *Collector) RecordBatch(batch measurement.Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batches++
	for _, m := range batch {
		c.record(m)
	}
}

func (c *Collector) record(m measurement.Measurement) {
	latency := m.Elapsed
	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if m.Successful() {
		c.successes++
	} else {
		c.failures++
	}
	c.statuses[m.StatusCode]++
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Batches:    c.batches,
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.statuses) > 0 {
		stats.StatusCodes = make(map[string]int, len(c.statuses))
		for code, n := range c.statuses {
			stats.StatusCodes[strconv.Itoa(code)] = int(n)
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
