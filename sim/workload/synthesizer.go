package workload

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slicesim/slicesim/sim"
)

// recentGenerations is how many summaries Statistics reports.
const recentGenerations = 10

// GenerationSummary is the compact record of one Generate call.
type GenerationSummary struct {
	Timestamp  time.Time             `json:"timestamp"`
	Pattern    string                `json:"pattern"`
	Multiplier float64               `json:"multiplier"`
	Total      int                   `json:"total"`
	BySlice    map[sim.SliceType]int `json:"by_slice"`
}

// SliceGeneration is the cumulative output for one slice.
type SliceGeneration struct {
	Generated  int64   `json:"generated"`
	TotalBytes int64   `json:"total_bytes"`
	AvgSize    float64 `json:"avg_size"`
}

// GeneratorStatistics is a point-in-time view of the synthesizer.
type GeneratorStatistics struct {
	TotalGenerated int64                             `json:"total_generated"`
	Generations    int                               `json:"generations"`
	BySlice        map[sim.SliceType]SliceGeneration `json:"by_slice"`
	Recent         []GenerationSummary               `json:"recent"`
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithIDPrefix prefixes every packet id, e.g. with the run id, so ids from
// different synthesizers never collide.
func WithIDPrefix(prefix string) Option {
	return func(s *Synthesizer) { s.idPrefix = prefix }
}

// WithClock overrides the packet creation clock.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// Synthesizer produces packets for every configured slice.
//
// Thread-safety: safe for concurrent use; generation is serialized.
type Synthesizer struct {
	mu       sync.Mutex
	slices   []sim.SliceConfig
	rng      *rand.Rand
	idPrefix string
	now      func() time.Time
	nextID   int64
	history  *sim.Ring[GenerationSummary]
	stats    map[sim.SliceType]*SliceGeneration
	total    int64
}

// NewSynthesizer creates a Synthesizer over cfg's slice table. The profiles
// are validated again so a hand-built Config cannot slip through.
func NewSynthesizer(cfg *sim.Config, rng *rand.Rand, opts ...Option) (*Synthesizer, error) {
	if cfg == nil || rng == nil {
		panic("NewSynthesizer: nil config or rng")
	}
	if err := sim.ValidateProfiles(cfg.Profiles()); err != nil {
		return nil, fmt.Errorf("invalid slice profiles: %w", err)
	}
	s := &Synthesizer{
		slices:  append([]sim.SliceConfig(nil), cfg.Slices...),
		rng:     rng,
		now:     time.Now,
		history: sim.NewRing[GenerationSummary](sim.DefaultHistorySize),
		stats:   make(map[sim.SliceType]*SliceGeneration, len(cfg.Slices)),
	}
	for _, sc := range s.slices {
		s.stats[sc.Slice] = &SliceGeneration{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate synthesizes floor(total*multiplier) packets split across slices
// by their configured shares. Unknown patterns behave as constant.
func (s *Synthesizer) Generate(total int, pattern string, elapsed float64) map[sim.SliceType][]sim.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	shares := make(map[sim.SliceType]float64, len(s.slices))
	for _, sc := range s.slices {
		shares[sc.Slice] = sc.Share
	}
	return s.generate(total, pattern, elapsed, func(adjusted int, sc sim.SliceConfig) int {
		return int(math.Floor(float64(adjusted) * shares[sc.Slice]))
	})
}

// GenerateEven synthesizes floor(total*multiplier) packets split into equal
// integer parts, one per slice. The remainder is not generated.
func (s *Synthesizer) GenerateEven(total int, pattern string, elapsed float64) map[sim.SliceType][]sim.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.slices)
	return s.generate(total, pattern, elapsed, func(adjusted int, _ sim.SliceConfig) int {
		return adjusted / n
	})
}

// GenerateMix is Generate with caller-supplied shares, which must cover
// configured slices only and sum to 1.0 within sim.ShareTolerance.
func (s *Synthesizer) GenerateMix(total int, pattern string, elapsed float64, shares map[sim.SliceType]float64) (map[sim.SliceType][]sim.Packet, error) {
	sum := 0.0
	for slice, share := range shares {
		if !s.configured(slice) {
			return nil, fmt.Errorf("%w: no configuration for %s", sim.ErrInvalidProfile, slice)
		}
		if share < 0 || math.IsNaN(share) {
			return nil, fmt.Errorf("%w: %s share %g", sim.ErrInvalidProfile, slice, share)
		}
		sum += share
	}
	if math.Abs(sum-1.0) > sim.ShareTolerance {
		return nil, fmt.Errorf("%w: shares sum to %.4f, want 1.0 ± %.2f", sim.ErrInvalidProfile, sum, sim.ShareTolerance)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(total, pattern, elapsed, func(adjusted int, sc sim.SliceConfig) int {
		return int(math.Floor(float64(adjusted) * shares[sc.Slice]))
	}), nil
}

func (s *Synthesizer) configured(slice sim.SliceType) bool {
	for _, sc := range s.slices {
		if sc.Slice == slice {
			return true
		}
	}
	return false
}

// generate runs one generation; callers hold s.mu. volumeFor maps the
// pattern-adjusted volume to a slice's packet count.
func (s *Synthesizer) generate(total int, pattern string, elapsed float64, volumeFor func(int, sim.SliceConfig) int) map[sim.SliceType][]sim.Packet {
	if _, ok := NewTrafficPattern(pattern); !ok {
		logrus.Debugf("unknown traffic pattern %q, using %s", pattern, PatternConstant)
	}
	multiplier := Multiplier(pattern, elapsed, s.rng)
	adjusted := int(math.Floor(float64(max(total, 0)) * multiplier))
	now := s.now()

	out := make(map[sim.SliceType][]sim.Packet, len(s.slices))
	summary := GenerationSummary{
		Timestamp:  now,
		Pattern:    pattern,
		Multiplier: multiplier,
		BySlice:    make(map[sim.SliceType]int, len(s.slices)),
	}
	for _, sc := range s.slices {
		n := volumeFor(adjusted, sc)
		packets := make([]sim.Packet, 0, n)
		st := s.stats[sc.Slice]
		for i := 0; i < n; i++ {
			p := s.newPacket(sc, now)
			st.Generated++
			st.TotalBytes += int64(p.Size)
			packets = append(packets, p)
		}
		if st.Generated > 0 {
			st.AvgSize = float64(st.TotalBytes) / float64(st.Generated)
		}
		out[sc.Slice] = packets
		summary.BySlice[sc.Slice] = n
		summary.Total += n
	}
	s.total += int64(summary.Total)
	s.history.Append(summary)
	return out
}

// newPacket samples every attribute uniformly from the slice's profile.
func (s *Synthesizer) newPacket(sc sim.SliceConfig, now time.Time) sim.Packet {
	s.nextID++
	p := sim.Packet{
		ID:            fmt.Sprintf("%spkt_%09d", s.idPrefix, s.nextID),
		Slice:         sc.Slice,
		Size:          sc.Size.Sample(s.rng),
		Priority:      sc.Priority.Sample(s.rng),
		Bandwidth:     sc.Bandwidth.Sample(s.rng),
		LatencyReq:    sc.Latency.Sample(s.rng),
		LossTolerance: sc.LossTolerance.Sample(s.rng),
		CreatedAt:     now,
	}
	deviceIdx := -1
	if sc.DevicePopulation > 0 {
		deviceIdx = s.rng.Intn(sc.DevicePopulation)
		p.DeviceID = deviceID(deviceIdx)
		p.DeviceClass = deviceClass(deviceIdx)
	}
	p.SrcAddr = sourceAddr(sc.Slice, deviceIdx, s.rng)
	p.DstAddr = destAddr(s.rng)
	return p
}

// Statistics returns cumulative per-slice output and the most recent summaries.
func (s *Synthesizer) Statistics() GeneratorStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := GeneratorStatistics{
		TotalGenerated: s.total,
		Generations:    s.history.Len(),
		BySlice:        make(map[sim.SliceType]SliceGeneration, len(s.stats)),
		Recent:         s.history.Last(recentGenerations),
	}
	for slice, st := range s.stats {
		out.BySlice[slice] = *st
	}
	return out
}

// History returns up to n of the newest generation summaries, oldest first.
func (s *Synthesizer) History(n int) []GenerationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Last(n)
}
