package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the seed of a reproducible run. Equal keys with equal
// configuration give identical packet streams and metric samples.
type SimulationKey int64

// NewSimulationKey wraps seed.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// SubsystemSynthesizer names the packet synthesis stream. It is seeded with
// the key itself, so --seed maps 1:1 onto generated traffic.
const SubsystemSynthesizer = "synthesizer"

// SubsystemEngine names the sampling stream of slice's engine.
func SubsystemEngine(slice SliceType) string {
	return "engine_" + string(slice)
}

// PartitionedRNG hands every subsystem its own *rand.Rand so extra draws in
// one engine never shift the samples of another.
//
// Seeds: the synthesizer uses the key; every other subsystem uses
// key XOR fnv1a64(name).
//
// Thread-safety: NOT thread-safe. Resolve all subsystems up front, then hand
// each *rand.Rand to the single goroutine that owns it.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

// NewPartitionedRNG creates an empty partition for key.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns name's stream, creating it on first use. Repeated
// calls return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	s := int64(p.key)
	if name != SubsystemSynthesizer {
		s ^= fnv1a64(name)
	}
	r := rand.New(rand.NewSource(s))
	p.streams[name] = r
	return r
}

// Key returns the partition's key.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
