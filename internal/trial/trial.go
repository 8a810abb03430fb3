// Package trial builds the standard latbench trial: run one batch, persist it,
// and reduce it to the mean elapsed time of its successful responses.
package trial

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/torosent/latbench/internal/measurement"
	"github.com/torosent/latbench/internal/sampler"
)

// DefaultMinSuccess is the number of successful responses a batch needs to be
// informative.
const DefaultMinSuccess = 2

// BatchRunner issues one batch of requests.
type BatchRunner interface {
	Run(ctx context.Context, total int) measurement.Batch
}

// Saver persists a batch. Errors are fatal to the trial.
type Saver interface {
	Save(batch measurement.Batch) error
}

// Sink observes every batch after it has been saved.
type Sink interface {
	RecordBatch(batch measurement.Batch)
}

type Options struct {
	MinSuccess int
	Sinks      []Sink
	Logger     *zap.Logger
}

func (o *Options) normalize() {
	if o.MinSuccess <= 0 {
		o.MinSuccess = DefaultMinSuccess
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// New returns a sampler.TrialFunc that runs one batch through runner, saves it,
// and returns the mean elapsed seconds of responses with status 200. A batch
// with fewer than MinSuccess successes returns 0, which the sampler drops.
func New(runner BatchRunner, saver Saver, opt Options) sampler.TrialFunc {
	opt.normalize()
	return func(ctx context.Context, sampleSize int) (float64, error) {
		batch, err := RunBatch(ctx, runner, saver, sampleSize, opt)
		if err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		mean, successes := batch.MeanSuccessElapsed()
		if successes < opt.MinSuccess {
			opt.Logger.Debug("batch not informative",
				zap.Int("successes", successes),
				zap.Int("min_success", opt.MinSuccess))
			return 0, nil
		}
		return mean, nil
	}
}

// RunBatch issues total requests, saves the resulting batch and hands it to
// the sinks. Throttled requests are reported as a warning.
func RunBatch(ctx context.Context, runner BatchRunner, saver Saver, total int, opt Options) (measurement.Batch, error) {
	opt.normalize()
	batch := runner.Run(ctx, total)
	if err := saver.Save(batch); err != nil {
		return batch, fmt.Errorf("save batch: %w", err)
	}
	for _, sink := range opt.Sinks {
		sink.RecordBatch(batch)
	}
	if throttled := batch.Throttled(); throttled > 0 {
		opt.Logger.Warn(fmt.Sprintf("%d requests throttled", throttled),
			zap.Int("throttled", throttled),
			zap.Int("requests", len(batch)))
	}
	return batch, nil
}
