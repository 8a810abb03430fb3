package runner

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pacer spaces request starts across all workers of a runner.
type pacer interface {
	Wait(ctx context.Context) error
}

// newPacer returns nil when no rate is configured.
func newPacer(opt Options) pacer {
	if opt.RatePerSecond <= 0 {
		return nil
	}
	if opt.ArrivalModel == ArrivalModelPoisson {
		sample := opt.PoissonSampler
		if sample == nil {
			sample = rand.New(rand.NewSource(opt.RandomSeed)).ExpFloat64
		}
		return &poissonPacer{
			mean:   time.Second / time.Duration(opt.RatePerSecond),
			sample: sample,
		}
	}
	return opt.LimiterFactory(opt.RatePerSecond)
}

// poissonPacer sleeps for exponentially distributed gaps with the configured
// mean, approximating a Poisson arrival process.
type poissonPacer struct {
	mean time.Duration

	mu     sync.Mutex // the sampler is not safe for concurrent use
	sample func() float64
}

func (p *poissonPacer) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.gap())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonPacer) gap() time.Duration {
	p.mu.Lock()
	v := p.sample()
	p.mu.Unlock()
	return time.Duration(v * float64(p.mean))
}

var _ pacer = (*rate.Limiter)(nil)
