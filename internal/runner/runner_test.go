package runner_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/latbench/internal/httpclient"
	"github.com/torosent/latbench/internal/measurement"
	"github.com/torosent/latbench/internal/runner"
)

// fakeIssuer simulates a request with fixed latency.
type fakeIssuer struct {
	latency time.Duration
	calls   int64
	panicAt int64 // if >0, the call with this sequence number panics
}

func (f *fakeIssuer) Issue(ctx context.Context, _ *httpclient.RequestTemplate, _ bool) measurement.Measurement {
	n := atomic.AddInt64(&f.calls, 1)
	if f.panicAt > 0 && n == f.panicAt {
		panic("boom")
	}
	start := time.Now()
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
		}
	}
	return measurement.Measurement{Start: start, StatusCode: http.StatusOK, Elapsed: time.Since(start)}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		total, workers int
		want           []int
	}{
		{10, 3, []int{3, 3, 4}},
		{12, 12, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
		{11, 2, []int{6, 5}},
		{3, 2, []int{2, 1}},
		{1, 4, []int{0, 0, 0, 1}},
		{15, 10, []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 6}},
		{7, 1, []int{7}},
		{0, 3, []int{0, 0, 0}},
	}
	for _, tt := range tests {
		got := runner.Split(tt.total, tt.workers)
		if len(got) != len(tt.want) {
			t.Fatalf("Split(%d,%d) = %v, want %v", tt.total, tt.workers, got, tt.want)
		}
		sum := 0
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("Split(%d,%d) = %v, want %v", tt.total, tt.workers, got, tt.want)
			}
			if got[i] < 0 {
				t.Fatalf("Split(%d,%d) produced a negative share", tt.total, tt.workers)
			}
			sum += got[i]
		}
		if sum != tt.total {
			t.Fatalf("Split(%d,%d) sums to %d", tt.total, tt.workers, sum)
		}
	}
}

func TestSplitAlwaysSumsToTotal(t *testing.T) {
	for total := 0; total <= 200; total++ {
		for workers := 1; workers <= 16; workers++ {
			sum := 0
			for _, s := range runner.Split(total, workers) {
				if s < 0 {
					t.Fatalf("negative share for total=%d workers=%d", total, workers)
				}
				sum += s
			}
			if sum != total {
				t.Fatalf("total=%d workers=%d: shares sum to %d", total, workers, sum)
			}
		}
	}
}

func TestRunReturnsEveryMeasurement(t *testing.T) {
	issuer := &fakeIssuer{latency: time.Millisecond}
	r := runner.New(issuer, nil, runner.Options{Workers: 3})
	batch := r.Run(context.Background(), 10)
	if len(batch) != 10 {
		t.Fatalf("expected 10 measurements, got %d", len(batch))
	}
	if issuer.calls != 10 {
		t.Fatalf("expected issuer called 10 times, got %d", issuer.calls)
	}
}

func TestRunIsParallel(t *testing.T) {
	issuer := &fakeIssuer{latency: 2 * time.Millisecond}
	r := runner.New(issuer, nil, runner.Options{Workers: 8})
	start := time.Now()
	batch := r.Run(context.Background(), 1000)
	elapsed := time.Since(start)
	if len(batch) != 1000 {
		t.Fatalf("expected 1000 measurements, got %d", len(batch))
	}
	// Serial execution would take at least 2s; 125 requests per worker take ~250ms.
	if elapsed > time.Second {
		t.Fatalf("batch did not run in parallel: %s", elapsed)
	}
}

func TestRunSurvivesWorkerPanic(t *testing.T) {
	issuer := &fakeIssuer{panicAt: 3}
	r := runner.New(issuer, nil, runner.Options{Workers: 4})
	batch := r.Run(context.Background(), 40)
	if len(batch) == 0 || len(batch) >= 40 {
		t.Fatalf("expected a partial batch after one crashed worker, got %d", len(batch))
	}
	for _, m := range batch {
		if m.StatusCode != http.StatusOK {
			t.Fatalf("unexpected measurement %+v", m)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	issuer := &fakeIssuer{latency: 5 * time.Millisecond}
	r := runner.New(issuer, nil, runner.Options{Workers: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	batch := r.Run(ctx, 1000)
	if len(batch) >= 1000 {
		t.Fatalf("expected cancellation to cut the batch short, got %d", len(batch))
	}
}

func TestRunRespectsRate(t *testing.T) {
	issuer := &fakeIssuer{}
	r := runner.New(issuer, nil, runner.Options{Workers: 4, RatePerSecond: 100})
	start := time.Now()
	batch := r.Run(context.Background(), 150)
	elapsed := time.Since(start)
	if len(batch) != 150 {
		t.Fatalf("expected 150 measurements, got %d", len(batch))
	}
	// Burst of 100 then 50 more at 100/s.
	if elapsed < 400*time.Millisecond {
		t.Fatalf("rate limiter did not pace requests: %s", elapsed)
	}
}
