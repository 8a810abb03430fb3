// Package runner executes one batch of requests concurrently.
//
// A batch of n requests is split over a fixed number of workers with [Split]:
// every worker but the last issues round(n/workers) requests and the last
// absorbs the remainder. Run blocks until all workers have joined and
// returns every measurement:
//
//	r := runner.New(issuer, tmpl, runner.Options{Workers: 8, Reuse: true})
//	batch := r.Run(ctx, 1000)
//
// Workers record into private buffers that are merged once at the join, so
// there is no shared state on the request path. Optional pacing
// ([Options.RatePerSecond]) is shared by all workers and uses either uniform
// spacing through golang.org/x/time/rate or Poisson inter-arrival times.
//
// A batch is never cancelled mid-way by the caller's statistics; only a
// cancelled context (process interruption) stops it early.
package runner
