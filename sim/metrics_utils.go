package sim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// percentile returns the p-th percentile of sorted, interpolating linearly
// between the two closest ranks. Empty input yields 0.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*frac
}

// Distribution summarizes a sample set.
type Distribution struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
}

// NewDistribution computes min/max/mean/median and population standard
// deviation of xs. xs is not modified. Empty input yields the zero value.
func NewDistribution(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	return Distribution{
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Mean:   mean,
		Median: percentile(sorted, 50),
		StdDev: std,
	}
}

// meanOf is stat.Mean guarded for empty input.
func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// rate returns (processed-subtracted)/processed as a percentage clamped to
// [0, 100], or 0 when processed is 0.
func rate(processed, subtracted int64) float64 {
	if processed <= 0 {
		return 0
	}
	r := float64(processed-subtracted) / float64(processed) * 100
	return math.Max(0, math.Min(r, 100))
}
