package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// Thresholds are a slice's fixed QoS targets. A zero field does not apply.
type Thresholds struct {
	MaxLatency     float64 `json:"max_latency,omitempty"`     // ms
	MinThroughput  float64 `json:"min_throughput,omitempty"`  // Mbps
	MinReliability float64 `json:"min_reliability,omitempty"` // percent
	MaxDropRate    float64 `json:"max_drop_rate,omitempty"`   // percent
	MaxJitter      float64 `json:"max_jitter,omitempty"`      // ms
}

// Compliant reports whether m meets every applicable threshold simultaneously.
func (t Thresholds) Compliant(m PacketMetrics) bool {
	if t.MaxLatency > 0 && m.Latency > t.MaxLatency {
		return false
	}
	if t.MinThroughput > 0 && m.Throughput < t.MinThroughput {
		return false
	}
	if t.MinReliability > 0 && m.Reliability < t.MinReliability {
		return false
	}
	if t.MaxDropRate > 0 && m.DropRate > t.MaxDropRate {
		return false
	}
	if t.MaxJitter > 0 && m.Jitter > t.MaxJitter {
		return false
	}
	return true
}

// PacketMetrics are the synthetic measurements for one serviced packet.
type PacketMetrics struct {
	Latency     float64 `json:"latency"`    // ms
	Throughput  float64 `json:"throughput"` // Mbps
	DropRate    float64 `json:"drop_rate"`  // percent
	Jitter      float64 `json:"jitter"`     // ms
	Reliability float64 `json:"reliability,omitempty"`
}

// MetricModel produces synthetic measurements. Sample is a pure function of
// its arguments: u is queue occupancy in [0, 1] after admission, size is the
// packet size in bytes and lastLatency the previous sample's latency (0 if none).
type MetricModel interface {
	Thresholds() Thresholds
	Sample(rng *rand.Rand, u float64, size int, lastLatency float64) PacketMetrics
}

// NewMetricModel returns the model for slice. Panics on unknown slices.
func NewMetricModel(slice SliceType) MetricModel {
	switch slice {
	case SliceHighThroughput:
		return highThroughputModel{}
	case SliceLowLatency:
		return lowLatencyModel{}
	case SliceMassiveDevice:
		return massiveDeviceModel{}
	default:
		panic(fmt.Sprintf("no metric model for slice %q", slice))
	}
}

// linkThroughput is the effective rate (Mbps) of sending size bytes over a
// bw-Mbps link after the previous packet's latency, capped to [0, ceiling].
// With no prior latency the link rate itself is returned.
func linkThroughput(size int, bw, lastLatency, ceiling float64) float64 {
	bits := float64(size) * 8
	total := lastLatency/1000 + bits/(bw*1e6)
	thr := bw
	if total > 0 {
		thr = bits / (total * 1e6)
	}
	return math.Max(0, math.Min(thr, ceiling))
}

// jitter is |latency - lastLatency| capped, or 0 when nothing was measured before.
func jitter(latency, lastLatency, ceiling float64) float64 {
	if lastLatency == 0 {
		return 0
	}
	return math.Min(math.Abs(latency-lastLatency), ceiling)
}

// === High-throughput ===

type highThroughputModel struct{}

func (highThroughputModel) Thresholds() Thresholds {
	return Thresholds{MaxLatency: 200, MinThroughput: 100, MaxDropRate: 0.5, MaxJitter: 50}
}

func (m highThroughputModel) Sample(rng *rand.Rand, u float64, size int, lastLatency float64) PacketMetrics {
	t := m.Thresholds()
	latency := Uniform(rng, 20, 100) + u*80 + Uniform(rng, 5, 30)
	latency = math.Min(latency, t.MaxLatency*1.2)
	thr := linkThroughput(size, Uniform(rng, 500, 1000), lastLatency, 1000)
	drop := math.Min(Uniform(rng, 0.01, 0.3)*(1+2*u), t.MaxDropRate*2)
	return PacketMetrics{
		Latency:    latency,
		Throughput: thr,
		DropRate:   drop,
		Jitter:     jitter(latency, lastLatency, t.MaxJitter*2),
	}
}

// === Low-latency ===

// Reliability bounds for the low-latency slice.
const (
	minReliabilityIndex = 99.0
	maxReliabilityIndex = 99.99
)

// reliabilityIndex degrades a base of 99.95 ± 0.05 by up to 10% at a full
// queue.
func reliabilityIndex(rng *rand.Rand, u float64) float64 {
	r := Uniform(rng, 99.90, 100.0) * (1 - 0.1*u)
	return math.Max(minReliabilityIndex, math.Min(r, maxReliabilityIndex))
}

type lowLatencyModel struct{}

func (lowLatencyModel) Thresholds() Thresholds {
	return Thresholds{MaxLatency: 10, MinReliability: 99.99, MaxDropRate: 0.01}
}

func (m lowLatencyModel) Sample(rng *rand.Rand, u float64, size int, lastLatency float64) PacketMetrics {
	t := m.Thresholds()
	latency := Uniform(rng, 0.5, 3) + u*4 + Uniform(rng, 2, 6)
	latency = math.Min(latency, t.MaxLatency*1.5)
	thr := linkThroughput(size, Uniform(rng, 50, 150), lastLatency, 150)
	drop := Uniform(rng, 0.0001, 0.0005) * (1 + u)
	return PacketMetrics{
		Latency:     latency,
		Throughput:  thr,
		DropRate:    drop,
		Jitter:      jitter(latency, lastLatency, 10),
		Reliability: reliabilityIndex(rng, u),
	}
}

// === Massive-device ===

type massiveDeviceModel struct{}

// Jitter is reported but not part of compliance for this slice.
func (massiveDeviceModel) Thresholds() Thresholds {
	return Thresholds{MaxLatency: 1000, MinThroughput: 10, MaxDropRate: 2.0}
}

func (m massiveDeviceModel) Sample(rng *rand.Rand, u float64, size int, lastLatency float64) PacketMetrics {
	t := m.Thresholds()
	latency := Uniform(rng, 50, 300) + u*400 + Uniform(rng, 100, 500)
	latency = math.Min(latency, t.MaxLatency*1.5)
	thr := linkThroughput(size, Uniform(rng, 10, 100), lastLatency, 150)
	drop := math.Min(Uniform(rng, 0.5, 1.5)*(1+3*u), 5)
	return PacketMetrics{
		Latency:    latency,
		Throughput: thr,
		DropRate:   drop,
		Jitter:     jitter(latency, lastLatency, 300),
	}
}
