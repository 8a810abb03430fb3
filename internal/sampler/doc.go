// Package sampler implements the adaptive sampling controller.
//
// The controller repeatedly calls a [TrialFunc], folds each returned value
// into a running [Statistic] (count, sum, sum of squares) and after every
// trial computes the precision: the confidence-interval half-width as a
// percentage of the running mean. Student's t quantiles are used below 30
// samples, the normal quantile from there on. The run stops once the
// precision is at or below the target.
//
//	res, err := sampler.Run(ctx, sampler.Options{
//		TargetPrecision: 2,
//		Confidence:      0.98,
//		SampleSize:      10,
//		Recorder:        rec,
//	}, trialFn)
//
// A trial returning 0 (or a non-finite value) is non-informative: it is not
// added to the statistic and counts against [Options.MaxDropped]. Exceeding
// that cap fails the run with [ErrDegenerate]. [Options.MaxTrials] bounds the
// number of informative trials; hitting it stops the run unconverged.
//
// The recorder is closed on every exit path, including trial errors and
// context cancellation, so buffered measurements are never lost.
package sampler
