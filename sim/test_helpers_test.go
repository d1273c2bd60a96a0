package sim

import (
	"fmt"
	"math/rand"
	"testing"
)

// testSliceConfig returns the default configuration for slice with the
// queue capacity overridden.
func testSliceConfig(t *testing.T, slice SliceType, capacity int) SliceConfig {
	t.Helper()
	cfg := DefaultConfig()
	sc, ok := cfg.Slice(slice)
	if !ok {
		t.Fatalf("no default config for %s", slice)
	}
	sc.QueueCapacity = capacity
	return sc
}

// testEngine builds an engine with a fixed seed.
func testEngine(t *testing.T, cfg SliceConfig) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// testPackets builds n packets for slice with the given priority.
func testPackets(slice SliceType, prefix string, n, priority int) []Packet {
	packets := make([]Packet, n)
	for i := range packets {
		packets[i] = Packet{
			ID:       fmt.Sprintf("%s_%d", prefix, i),
			Slice:    slice,
			Size:     200,
			Priority: priority,
		}
	}
	return packets
}

func testEntry(id string, priority int) QueueEntry {
	return QueueEntry{Packet: Packet{ID: id, Priority: priority, Size: 100}, Count: 1}
}
