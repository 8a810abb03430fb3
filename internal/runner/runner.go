package runner

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/torosent/latbench/internal/httpclient"
	"github.com/torosent/latbench/internal/measurement"
)

// Runner fans a batch of identical requests out over a fixed worker pool.
type Runner struct {
	opt    Options
	issuer Issuer
	tmpl   *httpclient.RequestTemplate
	pacer  pacer
}

// New creates a runner. The pacing state (if any) is shared by every batch
// the runner executes.
func New(issuer Issuer, tmpl *httpclient.RequestTemplate, opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:    opt,
		issuer: issuer,
		tmpl:   tmpl,
		pacer:  newPacer(opt),
	}
}

// Workers returns the normalized worker count.
func (r *Runner) Workers() int { return r.opt.Workers }

// Split divides total into per-worker shares. The first workers-1 workers
// get round(total/workers) each and the last absorbs the remainder. If the
// rounded share would leave the last worker a negative count, the share
// falls back to floor(total/workers).
func Split(total, workers int) []int {
	if workers <= 0 {
		workers = 1
	}
	if total <= 0 {
		return make([]int, workers)
	}
	per := int(math.Round(float64(total) / float64(workers)))
	if per*(workers-1) > total {
		per = total / workers
	}
	shares := make([]int, workers)
	for i := 0; i < workers-1; i++ {
		shares[i] = per
	}
	shares[workers-1] = total - per*(workers-1)
	return shares
}

// Run issues total requests and blocks until every worker has returned.
// Each worker fills its own buffer; buffers are concatenated at the join so
// the hot loop takes no locks. A cancelled context stops workers between
// requests, in which case fewer than total measurements are returned. A
// panicking worker keeps whatever it recorded and does not affect the others.
func (r *Runner) Run(ctx context.Context, total int) measurement.Batch {
	if ctx == nil {
		ctx = context.Background()
	}
	shares := Split(total, r.opt.Workers)
	buffers := make([]measurement.Batch, len(shares))

	var wg sync.WaitGroup
	for i, share := range shares {
		if share <= 0 {
			continue
		}
		buffers[i] = make(measurement.Batch, 0, share)
		wg.Add(1)
		go func(idx, count int) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.opt.Logger.Error("worker crashed",
						zap.Int("worker", idx),
						zap.Int("completed", len(buffers[idx])),
						zap.String("panic", fmt.Sprint(rec)),
					)
				}
			}()
			r.work(ctx, count, &buffers[idx])
		}(i, share)
	}
	wg.Wait()

	size := 0
	for _, buf := range buffers {
		size += len(buf)
	}
	batch := make(measurement.Batch, 0, size)
	for _, buf := range buffers {
		batch = append(batch, buf...)
	}
	return batch
}

func (r *Runner) work(ctx context.Context, count int, buf *measurement.Batch) {
	for j := 0; j < count; j++ {
		if ctx.Err() != nil {
			return
		}
		if r.pacer != nil {
			if err := r.pacer.Wait(ctx); err != nil {
				return
			}
		}
		*buf = append(*buf, r.issuer.Issue(ctx, r.tmpl, r.opt.Reuse))
	}
}
