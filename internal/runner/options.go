package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/latbench/internal/httpclient"
	"github.com/torosent/latbench/internal/measurement"
)

// Issuer sends one templated request and reports what happened. It must not
// fail; see httpclient.Issuer.
type Issuer interface {
	Issue(ctx context.Context, tmpl *httpclient.RequestTemplate, reuse bool) measurement.Measurement
}

// ArrivalModel selects how paced requests are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the Runner.
type Options struct {
	Workers        int                         // number of worker goroutines per batch
	Reuse          bool                        // send over the shared pooled client
	RatePerSecond  int                         // pacing across all workers (0 means unlimited)
	ArrivalModel   ArrivalModel                // spacing of paced requests
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64              // optional injection for tests
	RandomSeed     int64
	Logger         *zap.Logger
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst equal to rps to smooth pacing under concurrency.
			return rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}
