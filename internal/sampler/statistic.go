package sampler

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Statistic is the running aggregate of informative trial values.
type Statistic struct {
	Count      int
	Sum        float64
	SumSquares float64
}

// Add folds one trial value into the aggregate.
func (s *Statistic) Add(v float64) {
	s.Count++
	s.Sum += v
	s.SumSquares += v * v
}

// Mean returns sum/count, or 0 with no samples.
func (s Statistic) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}

// Variance returns the unbiased sample variance. It is only defined for two
// or more samples; ok is false otherwise. Rounding noise below zero is
// clamped to zero.
func (s Statistic) Variance() (variance float64, ok bool) {
	if s.Count < 2 {
		return 0, false
	}
	n := float64(s.Count)
	variance = (n*s.SumSquares - s.Sum*s.Sum) / (n * (n - 1))
	if variance < 0 {
		variance = 0
	}
	return variance, true
}

// Precision returns the confidence-interval half-width as a percentage of the
// mean. It is +Inf while fewer than two samples exist or when the mean is 0.
func (s Statistic) Precision(confidence float64) float64 {
	variance, ok := s.Variance()
	if !ok {
		return math.Inf(1)
	}
	mean := s.Mean()
	if mean == 0 {
		return math.Inf(1)
	}
	halfWidth := Quantile(confidence, s.Count) * math.Sqrt(variance/float64(s.Count))
	return halfWidth / math.Abs(mean) * 100
}

// largeSampleCount is where the normal approximation replaces Student's t.
const largeSampleCount = 30

// Quantile returns the two-sided critical value for confidence given count
// samples: Student's t with count-1 degrees of freedom below 30 samples, the
// standard normal quantile from there on.
func Quantile(confidence float64, count int) float64 {
	q := 1 - (1-confidence)/2
	if count < largeSampleCount && count >= 2 {
		t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(count - 1)}
		return t.Quantile(q)
	}
	return distuv.UnitNormal.Quantile(q)
}
