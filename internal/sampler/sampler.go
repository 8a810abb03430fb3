package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	DefaultMaxTrials  = 1000
	DefaultMaxDropped = 10
)

var (
	// ErrInvalidOptions wraps every option validation failure.
	ErrInvalidOptions = errors.New("sampler: invalid options")
	// ErrDegenerate is returned when too many trials were non-informative.
	ErrDegenerate = errors.New("sampler: too many non-informative trials")
)

// TrialFunc runs one trial of sampleSize requests and reduces it to a single
// value. Returning 0 marks the trial as non-informative; returning an error
// aborts the run.
type TrialFunc func(ctx context.Context, sampleSize int) (float64, error)

// State is the controller lifecycle position.
type State int

const (
	StateStart State = iota
	StateSampling
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSampling:
		return "sampling"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Progress describes one finished trial.
type Progress struct {
	Attempt   int     // every trial, dropped ones included
	Iteration int     // informative trials so far
	Value     float64 // the trial's value
	Dropped   bool
	Mean      float64
	Precision float64 // +Inf until two informative trials exist
}

// Result is the outcome of a run.
type Result struct {
	Mean      float64
	Precision float64
	Trials    int
	Dropped   int
	Converged bool
	State     State
	Elapsed   time.Duration
}

// Observer receives diagnostic output. It never influences control flow.
type Observer interface {
	TrialFinished(Progress)
	RunFinished(Result)
}

// Options configure a Controller.
type Options struct {
	TargetPrecision float64 // stop once precision (percent) is at or below this
	Confidence      float64 // in (0,1)
	SampleSize      int     // requests per trial, passed to the trial function
	MaxTrials       int     // cap on informative trials (default 1000)
	MaxDropped      int     // cap on non-informative trials (default 10)
	Recorder        io.Closer
	Observers       []Observer
	Tracer          trace.Tracer
	Logger          *zap.Logger
}

func (o *Options) normalize() {
	if o.MaxTrials == 0 {
		o.MaxTrials = DefaultMaxTrials
	}
	if o.MaxDropped == 0 {
		o.MaxDropped = DefaultMaxDropped
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("latbench")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o Options) validate() error {
	var issues []string
	if !(o.TargetPrecision > 0) || math.IsInf(o.TargetPrecision, 0) {
		issues = append(issues, "target precision must be > 0")
	}
	if !(o.Confidence > 0 && o.Confidence < 1) {
		issues = append(issues, "confidence must be in (0,1)")
	}
	if o.SampleSize < 1 {
		issues = append(issues, "sample size must be >= 1")
	}
	if o.MaxTrials < 2 {
		issues = append(issues, "max trials must be >= 2")
	}
	if o.MaxDropped < 0 {
		issues = append(issues, "max dropped must be >= 0")
	}
	if len(issues) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, issues)
	}
	return nil
}

// Controller repeats trials until the confidence interval of their mean is
// narrow enough.
type Controller struct {
	opt   Options
	stat  Statistic
	state State
}

// New validates opt and returns a controller in the start state.
func New(opt Options) (*Controller, error) {
	opt.normalize()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	return &Controller{opt: opt}, nil
}

// State reports the lifecycle position.
func (c *Controller) State() State { return c.state }

// Statistic returns the running aggregate.
func (c *Controller) Statistic() Statistic { return c.stat }

// Run drives trials until precision <= target, the informative-trial cap is
// hit (Converged=false), or the run fails. The recorder, if set, is closed on
// every exit path before Run returns; a close failure is returned as an error.
func (c *Controller) Run(ctx context.Context, trial TrialFunc) (res Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	defer func() {
		if c.opt.Recorder != nil {
			if closeErr := c.opt.Recorder.Close(); closeErr != nil {
				c.state = StateFailed
				err = errors.Join(err, fmt.Errorf("close recorder: %w", closeErr))
			}
		}
		res = c.result(time.Since(start), res.Dropped)
		for _, obs := range c.opt.Observers {
			obs.RunFinished(res)
		}
	}()

	if trial == nil {
		c.state = StateFailed
		return res, fmt.Errorf("%w: trial function is required", ErrInvalidOptions)
	}

	c.state = StateSampling
	precision := math.Inf(1)
	attempt := 0
	for precision > c.opt.TargetPrecision {
		if c.stat.Count >= c.opt.MaxTrials {
			c.opt.Logger.Warn("max trials reached before target precision",
				zap.Int("trials", c.stat.Count),
				zap.Float64("precision", precision),
				zap.Float64("target", c.opt.TargetPrecision),
			)
			break
		}
		if err := ctx.Err(); err != nil {
			c.state = StateFailed
			return res, err
		}

		attempt++
		value, err := c.runTrial(ctx, trial, attempt)
		if err != nil {
			c.state = StateFailed
			return res, fmt.Errorf("trial %d: %w", attempt, err)
		}

		progress := Progress{Attempt: attempt, Value: value}
		if informative(value) {
			c.stat.Add(value)
			precision = c.stat.Precision(c.opt.Confidence)
		} else {
			res.Dropped++
			progress.Dropped = true
			c.opt.Logger.Warn("non-informative trial dropped",
				zap.Int("attempt", attempt),
				zap.Float64("value", value),
				zap.Int("dropped", res.Dropped),
			)
		}
		progress.Iteration = c.stat.Count
		progress.Mean = c.stat.Mean()
		progress.Precision = precision
		for _, obs := range c.opt.Observers {
			obs.TrialFinished(progress)
		}

		if res.Dropped > c.opt.MaxDropped {
			c.state = StateFailed
			return res, fmt.Errorf("%w: %d dropped of %d attempts", ErrDegenerate, res.Dropped, attempt)
		}
	}
	c.state = StateStopped
	return res, nil
}

func (c *Controller) runTrial(ctx context.Context, trial TrialFunc, attempt int) (float64, error) {
	ctx, span := c.opt.Tracer.Start(ctx, "trial",
		trace.WithAttributes(
			attribute.Int("latbench.attempt", attempt),
			attribute.Int("latbench.sample_size", c.opt.SampleSize),
		),
	)
	defer span.End()

	value, err := trial(ctx, c.opt.SampleSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(
		attribute.Float64("latbench.value", value),
		attribute.Bool("latbench.dropped", !informative(value)),
	)
	span.SetStatus(codes.Ok, "")
	return value, nil
}

func (c *Controller) result(elapsed time.Duration, dropped int) Result {
	precision := c.stat.Precision(c.opt.Confidence)
	return Result{
		Mean:      c.stat.Mean(),
		Precision: precision,
		Trials:    c.stat.Count,
		Dropped:   dropped,
		Converged: c.state == StateStopped && precision <= c.opt.TargetPrecision,
		State:     c.state,
		Elapsed:   elapsed,
	}
}

// informative rejects the 0 sentinel and non-finite values.
func informative(v float64) bool {
	return v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Run is a convenience wrapper: it builds a controller from opt and runs it.
func Run(ctx context.Context, opt Options, trial TrialFunc) (Result, error) {
	c, err := New(opt)
	if err != nil {
		if opt.Recorder != nil {
			err = errors.Join(err, opt.Recorder.Close())
		}
		return Result{State: StateFailed}, err
	}
	return c.Run(ctx, trial)
}
