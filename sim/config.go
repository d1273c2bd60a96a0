package sim

import (
	"fmt"
	"time"
)

// TrafficBounds limits the run requests the orchestrator accepts.
type TrafficBounds struct {
	MinVolume   int      `yaml:"min_volume" json:"min_volume"`
	MaxVolume   int      `yaml:"max_volume" json:"max_volume"`
	MinDuration int      `yaml:"min_duration" json:"min_duration"`
	MaxDuration int      `yaml:"max_duration" json:"max_duration"`
	Patterns    []string `yaml:"patterns" json:"patterns"`
}

// LoopConfig controls the orchestrator's tick loop.
type LoopConfig struct {
	// TickInterval is one simulated time unit; the loop sleeps this long after each tick.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`
	// SliceTimeout bounds each per-slice dispatch within a tick.
	SliceTimeout time.Duration `yaml:"slice_timeout" json:"slice_timeout"`
	// SnapshotHistory is how many snapshots each run keeps for trend queries.
	SnapshotHistory int `yaml:"snapshot_history" json:"snapshot_history"`
}

// SliceConfig is the full per-slice configuration: traffic profile plus the
// engine's resource bounds and policies.
type SliceConfig struct {
	SliceProfile `yaml:",inline"`

	QueueCapacity    int    `yaml:"queue_capacity" json:"queue_capacity"`
	Overflow         string `yaml:"overflow" json:"overflow"`
	PreemptThreshold int    `yaml:"preempt_threshold" json:"preempt_threshold,omitempty"`

	// DeviceLimit > 0 enables the device registry.
	DeviceLimit int `yaml:"device_limit" json:"device_limit,omitempty"`
	// DevicePopulation is how many distinct device ids the synthesizer draws from.
	DevicePopulation int  `yaml:"device_population" json:"device_population,omitempty"`
	Aggregate        bool `yaml:"aggregate" json:"aggregate,omitempty"`

	// RedundancyCache > 0 enables retransmission of QoS-violating packets.
	RedundancyCache int `yaml:"redundancy_cache" json:"redundancy_cache,omitempty"`

	// ServiceRate entries are drained from the queue head before each batch.
	// 0 means the queue is never serviced.
	ServiceRate int `yaml:"service_rate" json:"service_rate,omitempty"`

	HistorySize int  `yaml:"history_size" json:"history_size,omitempty"`
	Trace       bool `yaml:"trace" json:"trace,omitempty"`

	// Endpoint, when set, is the gRPC address of an out-of-process engine.
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`
}

// DefaultHistorySize is the BatchResult and generation history capacity.
const DefaultHistorySize = 1000

// Validate checks the slice's engine settings. The profile itself is checked
// together with its siblings by ValidateProfiles.
func (c SliceConfig) Validate() error {
	if c.QueueCapacity < 0 {
		return fmt.Errorf("%w: %s queue_capacity %d", ErrInvalidCapacity, c.Slice, c.QueueCapacity)
	}
	if !IsValidOverflowPolicy(c.Overflow) {
		return fmt.Errorf("%s: unknown overflow policy %q", c.Slice, c.Overflow)
	}
	if c.PreemptThreshold < 0 || c.PreemptThreshold > MaxPriority {
		return fmt.Errorf("%s: preempt_threshold %d outside [0, %d]", c.Slice, c.PreemptThreshold, MaxPriority)
	}
	for name, v := range map[string]int{
		"device_limit":      c.DeviceLimit,
		"device_population": c.DevicePopulation,
		"redundancy_cache":  c.RedundancyCache,
		"service_rate":      c.ServiceRate,
		"history_size":      c.HistorySize,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s %s %d", ErrInvalidCapacity, c.Slice, name, v)
		}
	}
	return nil
}

// Config is the immutable configuration surface consumed by the core.
type Config struct {
	Seed    int64         `yaml:"seed" json:"seed"`
	Traffic TrafficBounds `yaml:"traffic" json:"traffic"`
	Loop    LoopConfig    `yaml:"loop" json:"loop"`
	Slices  []SliceConfig `yaml:"slices" json:"slices"`
}

// DefaultPatterns are the traffic patterns accepted for new runs by default.
var DefaultPatterns = []string{"constant", "linear_increase", "burst", "wave"}

// DefaultConfig returns the stock three-slice configuration.
func DefaultConfig() Config {
	profiles := DefaultProfiles()
	return Config{
		Seed: 42,
		Traffic: TrafficBounds{
			MinVolume:   100,
			MaxVolume:   1_000_000,
			MinDuration: 10,
			MaxDuration: 3600,
			Patterns:    append([]string(nil), DefaultPatterns...),
		},
		Loop: LoopConfig{
			TickInterval:    time.Second,
			SliceTimeout:    3 * time.Second,
			SnapshotHistory: DefaultHistorySize,
		},
		Slices: []SliceConfig{
			{
				SliceProfile:  profiles[0],
				QueueCapacity: 10000,
				Overflow:      "drop",
				HistorySize:   DefaultHistorySize,
			},
			{
				SliceProfile:     profiles[1],
				QueueCapacity:    5000,
				Overflow:         "preempt",
				PreemptThreshold: DefaultPreemptThreshold,
				RedundancyCache:  5000,
				HistorySize:      DefaultHistorySize,
			},
			{
				SliceProfile:     profiles[2],
				QueueCapacity:    100000,
				Overflow:         "drop",
				DeviceLimit:      100000,
				DevicePopulation: 5000,
				Aggregate:        true,
				HistorySize:      DefaultHistorySize,
			},
		},
	}
}

// Profiles returns the slice profiles in configuration order.
func (c *Config) Profiles() []SliceProfile {
	out := make([]SliceProfile, len(c.Slices))
	for i, s := range c.Slices {
		out[i] = s.SliceProfile
	}
	return out
}

// Slice returns the configuration for slice.
func (c *Config) Slice(slice SliceType) (SliceConfig, bool) {
	for _, s := range c.Slices {
		if s.Slice == slice {
			return s, true
		}
	}
	return SliceConfig{}, false
}

// IsValidPattern reports whether name is accepted for new runs.
func (c *Config) IsValidPattern(name string) bool {
	for _, p := range c.Traffic.Patterns {
		if p == name {
			return true
		}
	}
	return false
}

// Validate checks every bound, profile and engine setting. Called once at load.
func (c *Config) Validate() error {
	t := c.Traffic
	if t.MinVolume <= 0 || t.MaxVolume < t.MinVolume {
		return fmt.Errorf("traffic volume bounds [%d, %d] invalid", t.MinVolume, t.MaxVolume)
	}
	if t.MinDuration <= 0 || t.MaxDuration < t.MinDuration {
		return fmt.Errorf("duration bounds [%d, %d] invalid", t.MinDuration, t.MaxDuration)
	}
	if len(t.Patterns) == 0 {
		return fmt.Errorf("at least one traffic pattern must be allowed")
	}
	if c.Loop.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.Loop.TickInterval)
	}
	if c.Loop.SliceTimeout <= 0 {
		return fmt.Errorf("slice_timeout must be positive, got %s", c.Loop.SliceTimeout)
	}
	if c.Loop.SnapshotHistory < 0 {
		return fmt.Errorf("snapshot_history must be non-negative, got %d", c.Loop.SnapshotHistory)
	}
	if err := ValidateProfiles(c.Profiles()); err != nil {
		return err
	}
	for _, s := range c.Slices {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	for _, slice := range SliceOrder {
		if _, ok := c.Slice(slice); !ok {
			return fmt.Errorf("%w: missing configuration for %s", ErrInvalidProfile, slice)
		}
	}
	return nil
}
