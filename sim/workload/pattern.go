package workload

import (
	"math"
	"math/rand"
)

// Pattern names recognized by NewTrafficPattern.
const (
	PatternConstant       = "constant"
	PatternLinearIncrease = "linear_increase"
	PatternBurst          = "burst"
	PatternWave           = "wave"
	PatternPoisson        = "poisson"
	PatternGaussian       = "gaussian"
)

// MinMultiplier is the floor applied to every pattern's output.
const MinMultiplier = 0.1

// TrafficPattern scales the configured traffic volume over time.
// elapsed is measured in simulation time units since the run started.
type TrafficPattern interface {
	Value(elapsed float64, rng *rand.Rand) float64
}

// ConstantPattern always returns 1.
type ConstantPattern struct{}

func (ConstantPattern) Value(_ float64, _ *rand.Rand) float64 { return 1.0 }

// LinearIncreasePattern ramps from 0 to 1 over RampTime units, then holds.
type LinearIncreasePattern struct {
	RampTime float64
}

func (p LinearIncreasePattern) Value(elapsed float64, _ *rand.Rand) float64 {
	return math.Min(1.0, elapsed/p.RampTime)
}

// BurstPattern returns High for the first DutyCycle fraction of every Period
// and Low for the rest.
type BurstPattern struct {
	Period    float64
	DutyCycle float64
	High, Low float64
}

func (p BurstPattern) Value(elapsed float64, _ *rand.Rand) float64 {
	if math.Mod(elapsed, p.Period) < p.Period*p.DutyCycle {
		return p.High
	}
	return p.Low
}

// WavePattern is a sinusoid around 1.0.
type WavePattern struct {
	Period    float64
	Amplitude float64
}

func (p WavePattern) Value(elapsed float64, _ *rand.Rand) float64 {
	return 1.0 + p.Amplitude*math.Sin(2*math.Pi*elapsed/p.Period)
}

// PoissonPattern draws Poisson(Lambda)/Lambda, a unit-mean noisy multiplier.
type PoissonPattern struct {
	Lambda float64
}

func (p PoissonPattern) Value(_ float64, rng *rand.Rand) float64 {
	return float64(poisson(rng, p.Lambda)) / p.Lambda
}

// GaussianPattern draws from N(Mean, StdDev).
type GaussianPattern struct {
	Mean, StdDev float64
}

func (p GaussianPattern) Value(_ float64, rng *rand.Rand) float64 {
	return p.Mean + rng.NormFloat64()*p.StdDev
}

// NewTrafficPattern returns the pattern for name. Unknown names fall back to
// ConstantPattern; the second return value reports whether name was recognized.
func NewTrafficPattern(name string) (TrafficPattern, bool) {
	switch name {
	case PatternConstant:
		return ConstantPattern{}, true
	case PatternLinearIncrease:
		return LinearIncreasePattern{RampTime: 30}, true
	case PatternBurst:
		return BurstPattern{Period: 10, DutyCycle: 0.2, High: 1.5, Low: 0.7}, true
	case PatternWave:
		return WavePattern{Period: 60, Amplitude: 0.5}, true
	case PatternPoisson:
		return PoissonPattern{Lambda: 5}, true
	case PatternGaussian:
		return GaussianPattern{Mean: 1.0, StdDev: 0.2}, true
	default:
		return ConstantPattern{}, false
	}
}

// Multiplier evaluates the named pattern at elapsed and applies MinMultiplier.
func Multiplier(name string, elapsed float64, rng *rand.Rand) float64 {
	p, _ := NewTrafficPattern(name)
	return math.Max(MinMultiplier, p.Value(elapsed, rng))
}

// poisson samples Poisson(lambda) by Knuth's multiplication method.
// Suitable for the small lambdas used by PoissonPattern.
func poisson(rng *rand.Rand, lambda float64) int {
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return k
}
