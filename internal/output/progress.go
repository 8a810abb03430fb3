package output

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/torosent/latbench/internal/sampler"
)

// ProgressPrinter writes one line per informative trial and a closing summary
// line. It implements sampler.Observer.
type ProgressPrinter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewProgressPrinter creates a printer writing to w.
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	if w == nil {
		w = io.Discard
	}
	return &ProgressPrinter{writer: w}
}

// TrialFinished prints the running mean and precision once at least two
// informative trials exist.
func (p *ProgressPrinter) TrialFinished(pr sampler.Progress) {
	if pr.Dropped || pr.Iteration < 2 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "iteration:%d\tmean:%s\tprecision:%s\n",
		pr.Iteration, formatFloat(pr.Mean), formatFloat(pr.Precision))
}

func (p *ProgressPrinter) RunFinished(res sampler.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.writer, "Total iterations: %d, precision: %s\n", res.Trials, formatFloat(round3(res.Precision)))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round3(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*1000) / 1000
}
