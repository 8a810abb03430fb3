package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/latbench/internal/metrics"
	"github.com/torosent/latbench/internal/sampler"
)

const (
	ModeSampling = "sampling"
	ModeSingle   = "single"
)

// Summary is the end-of-run report.
type Summary struct {
	RunID    string           `json:"run_id" yaml:"run_id"`
	Target   string           `json:"target" yaml:"target"`
	Mode     string           `json:"mode" yaml:"mode"`
	Sampling *SamplingSummary `json:"sampling,omitempty" yaml:"sampling,omitempty"`
	Output   string           `json:"output" yaml:"output"`
	Recorded int64            `json:"recorded" yaml:"recorded"`
	Stats    metrics.Stats    `json:"stats" yaml:"stats"`
}

// SamplingSummary describes the sampler outcome. PrecisionPct is nil when the
// precision is undefined (fewer than two informative trials or a zero mean).
type SamplingSummary struct {
	State           string   `json:"state" yaml:"state"`
	Converged       bool     `json:"converged" yaml:"converged"`
	Trials          int      `json:"trials" yaml:"trials"`
	Dropped         int      `json:"dropped" yaml:"dropped"`
	MeanSeconds     float64  `json:"mean_seconds" yaml:"mean_seconds"`
	PrecisionPct    *float64 `json:"precision_pct,omitempty" yaml:"precision_pct,omitempty"`
	TargetPrecision float64  `json:"target_precision_pct" yaml:"target_precision_pct"`
	Confidence      float64  `json:"confidence" yaml:"confidence"`
	ElapsedMs       float64  `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// NewSamplingSummary converts a sampler result into its report form.
func NewSamplingSummary(res sampler.Result, targetPrecision, confidence float64) *SamplingSummary {
	s := &SamplingSummary{
		State:           res.State.String(),
		Converged:       res.Converged,
		Trials:          res.Trials,
		Dropped:         res.Dropped,
		MeanSeconds:     res.Mean,
		TargetPrecision: targetPrecision,
		Confidence:      confidence,
		ElapsedMs:       float64(res.Elapsed) / float64(time.Millisecond),
	}
	if !math.IsInf(res.Precision, 0) && !math.IsNaN(res.Precision) {
		p := res.Precision
		s.PrecisionPct = &p
	}
	return s
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, summary Summary) {
	stats := summary.Stats
	fmt.Fprintln(w, "\n--- Latency Benchmark Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", summary.RunID)
	fmt.Fprintf(w, "Target:            %s\n", summary.Target)
	fmt.Fprintf(w, "Mode:              %s\n", summary.Mode)
	if s := summary.Sampling; s != nil {
		fmt.Fprintln(w, "\nSampling:")
		fmt.Fprintf(w, "  State:           %s\n", s.State)
		fmt.Fprintf(w, "  Converged:       %t\n", s.Converged)
		fmt.Fprintf(w, "  Trials:          %d\n", s.Trials)
		fmt.Fprintf(w, "  Dropped:         %d\n", s.Dropped)
		fmt.Fprintf(w, "  Mean:            %s\n", time.Duration(s.MeanSeconds*float64(time.Second)))
		if s.PrecisionPct != nil {
			fmt.Fprintf(w, "  Precision:       %.3f%% (target %.3f%% at %.0f%% confidence)\n", *s.PrecisionPct, s.TargetPrecision, s.Confidence*100)
		} else {
			fmt.Fprintf(w, "  Precision:       undefined (target %.3f%% at %.0f%% confidence)\n", s.TargetPrecision, s.Confidence*100)
		}
		fmt.Fprintf(w, "  Elapsed:         %s\n", time.Duration(s.ElapsedMs*float64(time.Millisecond)))
	}
	fmt.Fprintln(w, "\nRequests:")
	fmt.Fprintf(w, "  Batches:         %d\n", stats.Batches)
	fmt.Fprintf(w, "  Total:           %d\n", stats.Total)
	fmt.Fprintf(w, "  Successful:      %d\n", stats.Successes)
	fmt.Fprintf(w, "  Failed:          %d\n", stats.Failures)
	fmt.Fprintf(w, "  Requests/sec:    %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	if rows := metrics.FlattenStatusCodes(stats.StatusCodes); len(rows) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range rows {
			fmt.Fprintf(w, "  %s: %d\n", row.Code, row.Count)
		}
	}
	fmt.Fprintf(w, "\nRecorded %d measurements to %s\n", summary.Recorded, summary.Output)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, summary Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return err
	}
	return enc.Close()
}
