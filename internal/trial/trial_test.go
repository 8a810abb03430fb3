package trial_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/torosent/latbench/internal/measurement"
	"github.com/torosent/latbench/internal/trial"
)

type stubRunner struct {
	batch measurement.Batch
	calls []int
}

func (s *stubRunner) Run(_ context.Context, total int) measurement.Batch {
	s.calls = append(s.calls, total)
	return s.batch
}

type stubSaver struct {
	saved []measurement.Batch
	err   error
}

func (s *stubSaver) Save(batch measurement.Batch) error {
	s.saved = append(s.saved, batch)
	return s.err
}

type countingSink struct{ batches int }

func (c *countingSink) RecordBatch(measurement.Batch) { c.batches++ }

func m(status int, elapsed time.Duration) measurement.Measurement {
	return measurement.Measurement{Start: time.Unix(1700000000, 0), StatusCode: status, Elapsed: elapsed}
}

func TestTrialReturnsMeanOfSuccesses(t *testing.T) {
	runner := &stubRunner{batch: measurement.Batch{
		m(200, 100*time.Millisecond),
		m(200, 300*time.Millisecond),
		m(500, 5*time.Second),
	}}
	saver := &stubSaver{}
	sink := &countingSink{}
	fn := trial.New(runner, saver, trial.Options{Sinks: []trial.Sink{sink}})

	got, err := fn(context.Background(), 3)
	if err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("expected mean 0.2s, got %v", got)
	}
	if len(runner.calls) != 1 || runner.calls[0] != 3 {
		t.Fatalf("expected one batch of 3, got %v", runner.calls)
	}
	if len(saver.saved) != 1 || len(saver.saved[0]) != 3 {
		t.Fatalf("expected the full batch saved, got %v", saver.saved)
	}
	if sink.batches != 1 {
		t.Fatalf("expected sink to see one batch, got %d", sink.batches)
	}
}

func TestTrialWarnsOnThrottling(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	runner := &stubRunner{batch: measurement.Batch{
		m(200, time.Millisecond),
		m(200, time.Millisecond),
		m(429, time.Millisecond),
		m(500, time.Millisecond),
	}}
	fn := trial.New(runner, &stubSaver{}, trial.Options{Logger: zap.New(core)})
	if _, err := fn(context.Background(), 4); err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if got := logs.FilterMessage("2 requests throttled").Len(); got != 1 {
		t.Fatalf("expected one throttling warning, got %d (%v)", got, logs.All())
	}
}

func TestTrialBelowMinSuccessIsNotInformative(t *testing.T) {
	runner := &stubRunner{batch: measurement.Batch{
		m(200, time.Second),
		m(503, time.Millisecond),
		m(503, time.Millisecond),
	}}
	fn := trial.New(runner, &stubSaver{}, trial.Options{MinSuccess: 2})
	got, err := fn(context.Background(), 3)
	if err != nil {
		t.Fatalf("trial failed: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 for a non-informative batch, got %v", got)
	}
}

func TestTrialSaveFailureIsFatal(t *testing.T) {
	saveErr := errors.New("disk full")
	sink := &countingSink{}
	fn := trial.New(&stubRunner{batch: measurement.Batch{m(200, time.Second)}}, &stubSaver{err: saveErr}, trial.Options{Sinks: []trial.Sink{sink}})
	if _, err := fn(context.Background(), 1); !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if sink.batches != 0 {
		t.Fatalf("expected sinks skipped after a failed save")
	}
}

func TestTrialCancelledStillSavesPartialBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	saver := &stubSaver{}
	fn := trial.New(&stubRunner{batch: measurement.Batch{m(200, time.Second)}}, saver, trial.Options{})
	if _, err := fn(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("expected partial batch saved before returning")
	}
}

func TestRunBatch(t *testing.T) {
	runner := &stubRunner{batch: measurement.Batch{m(200, time.Second), m(200, time.Second)}}
	saver := &stubSaver{}
	batch, err := trial.RunBatch(context.Background(), runner, saver, 2, trial.Options{})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if len(batch) != 2 || len(saver.saved) != 1 {
		t.Fatalf("unexpected batch %v saved %v", batch, saver.saved)
	}
}
