package workload

import (
	"math"
	"math/rand"
	"testing"
)

func TestNewTrafficPattern_KnownNames(t *testing.T) {
	for _, name := range []string{
		PatternConstant, PatternLinearIncrease, PatternBurst,
		PatternWave, PatternPoisson, PatternGaussian,
	} {
		if _, ok := NewTrafficPattern(name); !ok {
			t.Errorf("NewTrafficPattern(%q) not recognized", name)
		}
	}
}

func TestNewTrafficPattern_UnknownFallsBackToConstant(t *testing.T) {
	// GIVEN a pattern name nobody defines
	p, ok := NewTrafficPattern("sawtooth")

	// THEN it is reported unknown but still usable as constant
	if ok {
		t.Error("sawtooth reported as recognized")
	}
	if got := p.Value(17, rand.New(rand.NewSource(1))); got != 1.0 {
		t.Errorf("fallback value = %v, want 1.0", got)
	}
}

func TestMultiplier_DeterministicPatterns(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		pattern string
		elapsed float64
		want    float64
	}{
		{PatternConstant, 0, 1.0},
		{PatternConstant, 500, 1.0},
		{PatternLinearIncrease, 0, MinMultiplier}, // 0 floored to 0.1
		{PatternLinearIncrease, 15, 0.5},
		{PatternLinearIncrease, 30, 1.0},
		{PatternLinearIncrease, 90, 1.0},
		{PatternBurst, 0, 1.5},
		{PatternBurst, 1.9, 1.5},
		{PatternBurst, 2, 0.7},
		{PatternBurst, 9.5, 0.7},
		{PatternBurst, 11, 1.5},
		{PatternWave, 0, 1.0},
		{PatternWave, 15, 1.5},
		{PatternWave, 45, 0.5},
		{"unknown", 3, 1.0},
	}
	for _, tc := range tests {
		got := Multiplier(tc.pattern, tc.elapsed, rng)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Multiplier(%s, %v) = %v, want %v", tc.pattern, tc.elapsed, got, tc.want)
		}
	}
}

func TestMultiplier_StochasticPatterns_FlooredAndUnitMean(t *testing.T) {
	for _, pattern := range []string{PatternPoisson, PatternGaussian} {
		t.Run(pattern, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			const n = 20000
			sum := 0.0
			for i := 0; i < n; i++ {
				m := Multiplier(pattern, float64(i), rng)
				if m < MinMultiplier {
					t.Fatalf("sample %d = %v below floor %v", i, m, MinMultiplier)
				}
				sum += m
			}
			// The floor lifts the mean slightly above 1.
			if mean := sum / n; math.Abs(mean-1.0) > 0.05 {
				t.Errorf("mean multiplier = %.4f, want ~1.0", mean)
			}
		})
	}
}

func TestPoisson_MeanMatchesLambda(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const n = 20000
	sum := 0
	for i := 0; i < n; i++ {
		k := poisson(rng, 5)
		if k < 0 {
			t.Fatalf("negative sample %d", k)
		}
		sum += k
	}
	if mean := float64(sum) / n; math.Abs(mean-5) > 0.1 {
		t.Errorf("mean = %.3f, want ~5", mean)
	}
}
