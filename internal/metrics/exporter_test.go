package metrics

import (
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/torosent/latbench/internal/sampler"
)

func TestExporterRecordsBatchesAndTrials(t *testing.T) {
	e := NewExporter()
	e.RecordBatch(batchOf([]int{200, 200, 503}, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}))

	if got := testutil.ToFloat64(e.requests.WithLabelValues("200")); got != 2 {
		t.Fatalf("expected 2 requests with status 200, got %v", got)
	}
	if got := testutil.ToFloat64(e.requests.WithLabelValues("503")); got != 1 {
		t.Fatalf("expected 1 request with status 503, got %v", got)
	}

	e.TrialFinished(sampler.Progress{Attempt: 1, Iteration: 1, Value: 0.1, Mean: 0.1, Precision: math.Inf(1)})
	e.TrialFinished(sampler.Progress{Attempt: 2, Iteration: 1, Dropped: true, Mean: 0.1, Precision: math.Inf(1)})
	e.TrialFinished(sampler.Progress{Attempt: 3, Iteration: 2, Value: 0.3, Mean: 0.2, Precision: 4.5})

	if got := testutil.ToFloat64(e.trials.WithLabelValues("informative")); got != 2 {
		t.Fatalf("expected 2 informative trials, got %v", got)
	}
	if got := testutil.ToFloat64(e.trials.WithLabelValues("dropped")); got != 1 {
		t.Fatalf("expected 1 dropped trial, got %v", got)
	}
	if got := testutil.ToFloat64(e.mean); got != 0.2 {
		t.Fatalf("expected mean gauge 0.2, got %v", got)
	}
	if got := testutil.ToFloat64(e.precision); got != 4.5 {
		t.Fatalf("expected precision gauge 4.5, got %v", got)
	}

	e.RunFinished(sampler.Result{Mean: 0.25, Precision: 1.5})
	if got := testutil.ToFloat64(e.precision); got != 1.5 {
		t.Fatalf("expected final precision 1.5, got %v", got)
	}
}

func TestExporterHandler(t *testing.T) {
	e := NewExporter()
	e.RecordBatch(batchOf([]int{200}, []time.Duration{time.Millisecond}))

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"latbench_requests_total", "latbench_request_duration_seconds_bucket", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in exposition output", want)
		}
	}
}
