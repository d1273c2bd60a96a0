package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ShareTolerance is the allowed deviation of the summed slice shares from 1.0.
const ShareTolerance = 0.01

// ErrInvalidProfile is wrapped by every slice profile validation failure.
var ErrInvalidProfile = errors.New("invalid slice profile")

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Sample draws uniformly from [Min, Max].
func (r IntRange) Sample(rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// FloatRange is a closed float range.
type FloatRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Sample draws uniformly from [Min, Max).
func (r FloatRange) Sample(rng *rand.Rand) float64 {
	return Uniform(rng, r.Min, r.Max)
}

// Uniform draws uniformly from [lo, hi).
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// SliceProfile is the static traffic shape of one slice. Immutable after load.
type SliceProfile struct {
	Slice         SliceType  `yaml:"slice" json:"slice"`
	Size          IntRange   `yaml:"size" json:"size"`
	Priority      IntRange   `yaml:"priority" json:"priority"`
	Bandwidth     FloatRange `yaml:"bandwidth" json:"bandwidth"`
	Latency       FloatRange `yaml:"latency" json:"latency"`
	LossTolerance FloatRange `yaml:"loss_tolerance" json:"loss_tolerance"`
	Share         float64    `yaml:"share" json:"share"`
}

// Validate checks the profile's ranges. Share sums are checked by ValidateProfiles.
func (p SliceProfile) Validate() error {
	if !IsValidSliceType(p.Slice) {
		return fmt.Errorf("%w: unknown slice %q", ErrInvalidProfile, p.Slice)
	}
	if p.Size.Min <= 0 || p.Size.Max < p.Size.Min {
		return fmt.Errorf("%w: %s size range [%d, %d]", ErrInvalidProfile, p.Slice, p.Size.Min, p.Size.Max)
	}
	if p.Priority.Min < MinPriority || p.Priority.Max > MaxPriority || p.Priority.Max < p.Priority.Min {
		return fmt.Errorf("%w: %s priority range [%d, %d] outside [%d, %d]",
			ErrInvalidProfile, p.Slice, p.Priority.Min, p.Priority.Max, MinPriority, MaxPriority)
	}
	for name, r := range map[string]FloatRange{
		"bandwidth":      p.Bandwidth,
		"latency":        p.Latency,
		"loss_tolerance": p.LossTolerance,
	} {
		if r.Min < 0 || r.Max < r.Min || math.IsNaN(r.Min) || math.IsNaN(r.Max) {
			return fmt.Errorf("%w: %s %s range [%g, %g]", ErrInvalidProfile, p.Slice, name, r.Min, r.Max)
		}
	}
	if p.Share < 0 || p.Share > 1 || math.IsNaN(p.Share) {
		return fmt.Errorf("%w: %s share %g outside [0, 1]", ErrInvalidProfile, p.Slice, p.Share)
	}
	return nil
}

// ValidateProfiles validates each profile, rejects duplicate slices and
// requires the shares to sum to 1.0 within ShareTolerance.
func ValidateProfiles(profiles []SliceProfile) error {
	if len(profiles) == 0 {
		return fmt.Errorf("%w: no profiles configured", ErrInvalidProfile)
	}
	seen := make(map[SliceType]bool, len(profiles))
	sum := 0.0
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Slice] {
			return fmt.Errorf("%w: duplicate profile for %s", ErrInvalidProfile, p.Slice)
		}
		seen[p.Slice] = true
		sum += p.Share
	}
	if math.Abs(sum-1.0) > ShareTolerance {
		return fmt.Errorf("%w: shares sum to %.4f, want 1.0 ± %.2f", ErrInvalidProfile, sum, ShareTolerance)
	}
	return nil
}

// DefaultProfiles returns the stock profile table for the three slices.
func DefaultProfiles() []SliceProfile {
	return []SliceProfile{
		{
			Slice:         SliceHighThroughput,
			Size:          IntRange{Min: 500, Max: 2000},
			Priority:      IntRange{Min: 3, Max: 6},
			Bandwidth:     FloatRange{Min: 100, Max: 1000},
			Latency:       FloatRange{Min: 50, Max: 200},
			LossTolerance: FloatRange{Min: 0.1, Max: 1.0},
			Share:         0.4,
		},
		{
			Slice:         SliceLowLatency,
			Size:          IntRange{Min: 50, Max: 300},
			Priority:      IntRange{Min: 7, Max: 9},
			Bandwidth:     FloatRange{Min: 10, Max: 100},
			Latency:       FloatRange{Min: 1, Max: 10},
			LossTolerance: FloatRange{Min: 0.001, Max: 0.01},
			Share:         0.3,
		},
		{
			Slice:         SliceMassiveDevice,
			Size:          IntRange{Min: 100, Max: 500},
			Priority:      IntRange{Min: 1, Max: 3},
			Bandwidth:     FloatRange{Min: 1, Max: 50},
			Latency:       FloatRange{Min: 100, Max: 1000},
			LossTolerance: FloatRange{Min: 1.0, Max: 5.0},
			Share:         0.3,
		},
	}
}
