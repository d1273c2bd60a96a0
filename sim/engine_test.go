package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_HighThroughput_OverflowDropsExcess(t *testing.T) {
	// GIVEN a high-throughput engine with capacity 10
	e := testEngine(t, testSliceConfig(t, SliceHighThroughput, 10))

	// WHEN 15 packets arrive in one batch
	res := e.ProcessBatch(testPackets(SliceHighThroughput, "ht", 15, 5))

	// THEN at most 10 are processed, at least 5 dropped, and the queue is full
	if res.PacketsProcessed > 10 {
		t.Errorf("processed: got %d, want <= 10", res.PacketsProcessed)
	}
	if res.PacketsDropped < 5 {
		t.Errorf("dropped: got %d, want >= 5", res.PacketsDropped)
	}
	if res.QueueLength != 10 {
		t.Errorf("queue length: got %d, want 10", res.QueueLength)
	}
}

func TestEngine_LowLatency_SinglePacketOnEmptyQueue(t *testing.T) {
	// GIVEN a fresh low-latency engine
	e := testEngine(t, testSliceConfig(t, SliceLowLatency, 5000))

	// WHEN a single packet is processed
	res := e.ProcessBatch(testPackets(SliceLowLatency, "ll", 1, 9))

	// THEN latency is within 1.5x the 10ms target and jitter is zero
	require.Equal(t, 1, res.PacketsProcessed)
	if res.Metrics.Latency.Max > 15 {
		t.Errorf("latency: got %v, want <= 15", res.Metrics.Latency.Max)
	}
	if res.Metrics.Jitter != 0 {
		t.Errorf("jitter: got %v, want 0", res.Metrics.Jitter)
	}
	if res.Details[0].Jitter != 0 {
		t.Errorf("packet jitter: got %v, want 0", res.Details[0].Jitter)
	}
}

func TestEngine_LowLatency_PreemptsStrictlyLowerPriority(t *testing.T) {
	// GIVEN a full low-latency queue of priority-7 packets
	cfg := testSliceConfig(t, SliceLowLatency, 3)
	cfg.RedundancyCache = 0
	e := testEngine(t, cfg)
	e.ProcessBatch(testPackets(SliceLowLatency, "low", 3, 7))

	// WHEN a priority-9 packet arrives
	res := e.ProcessBatch(testPackets(SliceLowLatency, "urgent", 1, 9))

	// THEN it is admitted, exactly one resident is evicted, and length is unchanged
	assert.Equal(t, 1, res.PacketsProcessed)
	assert.Equal(t, 1, res.PacketsDropped)
	assert.Equal(t, 1, res.PacketsPreempted)
	assert.Equal(t, 3, res.QueueLength)
	ids := map[string]bool{}
	for _, entry := range e.queue.Items() {
		ids[entry.Packet.ID] = true
	}
	assert.True(t, ids["urgent_0"], "incoming packet not resident")
	assert.False(t, ids["low_0"], "oldest lowest-priority packet should be evicted")
}

func TestEngine_LowLatency_NoLowerPriority_Rejects(t *testing.T) {
	// GIVEN a full low-latency queue of priority-9 packets
	cfg := testSliceConfig(t, SliceLowLatency, 3)
	cfg.RedundancyCache = 0
	e := testEngine(t, cfg)
	e.ProcessBatch(testPackets(SliceLowLatency, "top", 3, 9))
	before := append([]QueueEntry(nil), e.queue.Items()...)

	// WHEN another priority-9 packet arrives
	res := e.ProcessBatch(testPackets(SliceLowLatency, "late", 1, 9))

	// THEN it is rejected and the queue is unchanged
	assert.Equal(t, 0, res.PacketsProcessed)
	assert.Equal(t, 1, res.PacketsDropped)
	assert.Equal(t, 0, res.PacketsPreempted)
	assert.Equal(t, before, e.queue.Items())
}

func TestEngine_LowLatency_BelowPreemptThreshold_Rejects(t *testing.T) {
	cfg := testSliceConfig(t, SliceLowLatency, 2)
	cfg.RedundancyCache = 0
	e := testEngine(t, cfg)
	e.ProcessBatch(testPackets(SliceLowLatency, "base", 2, 1))

	res := e.ProcessBatch(testPackets(SliceLowLatency, "mid", 1, 7))

	assert.Equal(t, 0, res.PacketsProcessed)
	assert.Equal(t, 1, res.PacketsDropped)
}

func TestEngine_MassiveDevice_AggregatesSameDevice(t *testing.T) {
	// GIVEN five packets from one device in a single batch
	e := testEngine(t, testSliceConfig(t, SliceMassiveDevice, 100))
	packets := testPackets(SliceMassiveDevice, "m", 5, 2)
	for i := range packets {
		packets[i].DeviceID = "device_00042"
	}

	// WHEN processed
	res := e.ProcessBatch(packets)

	// THEN four are aggregated away and one combined entry is admitted
	assert.Equal(t, 4, res.PacketsAggregated)
	assert.Equal(t, 1, res.PacketsProcessed)
	assert.Equal(t, 0, res.PacketsDropped)
	require.Equal(t, 1, e.queue.Len())
	entry := e.queue.Items()[0]
	assert.Equal(t, "m_0", entry.Packet.ID)
	assert.Equal(t, 5, entry.Count)
	assert.Equal(t, 1000, entry.Packet.Size)
	rec, ok := e.devices.Get("device_00042")
	require.True(t, ok)
	assert.Equal(t, int64(5), rec.PacketsSent)
}

func TestEngine_MassiveDevice_RegistryFull_RejectsWithoutQueueSlot(t *testing.T) {
	// GIVEN a registry limited to one device
	cfg := testSliceConfig(t, SliceMassiveDevice, 100)
	cfg.DeviceLimit = 1
	e := testEngine(t, cfg)
	packets := testPackets(SliceMassiveDevice, "m", 2, 2)
	packets[0].DeviceID = "device_a"
	packets[1].DeviceID = "device_b"

	// WHEN packets from two devices arrive
	res := e.ProcessBatch(packets)

	// THEN the second device is rejected without consuming capacity
	assert.Equal(t, 1, res.PacketsProcessed)
	assert.Equal(t, 1, res.PacketsDropped)
	assert.Equal(t, 1, res.DeviceRejections)
	assert.Equal(t, 1, res.QueueLength)
}

func TestEngine_QueueNeverExceedsCapacity(t *testing.T) {
	// GIVEN engines with small queues
	rng := rand.New(rand.NewSource(99))
	for _, slice := range SliceOrder {
		cfg := testSliceConfig(t, slice, 25)
		cfg.ServiceRate = 3
		e := testEngine(t, cfg)

		// WHEN random batch sizes and priorities arrive repeatedly
		for batch := 0; batch < 50; batch++ {
			packets := testPackets(slice, fmt.Sprintf("b%d", batch), rng.Intn(40), 0)
			for i := range packets {
				packets[i].Priority = rng.Intn(MaxPriority + 1)
				if slice == SliceMassiveDevice {
					packets[i].DeviceID = fmt.Sprintf("device_%d", rng.Intn(30))
				}
			}
			res := e.ProcessBatch(packets)

			// THEN the queue never exceeds its capacity
			if res.QueueLength > res.QueueCapacity {
				t.Fatalf("%s batch %d: queue %d exceeds capacity %d", slice, batch, res.QueueLength, res.QueueCapacity)
			}
			if e.queue.Len() > e.queue.Cap() {
				t.Fatalf("%s: queue invariant broken", slice)
			}
		}
	}
}

func TestEngine_Rates_BoundedAndZeroWhenNothingProcessed(t *testing.T) {
	// GIVEN an engine that cannot admit anything
	e := testEngine(t, testSliceConfig(t, SliceHighThroughput, 0))

	// WHEN a batch arrives
	res := e.ProcessBatch(testPackets(SliceHighThroughput, "x", 5, 5))

	// THEN rates are 0 rather than NaN
	assert.Equal(t, 0, res.PacketsProcessed)
	assert.Equal(t, 0.0, res.SuccessRate)
	assert.Equal(t, 0.0, res.QoSComplianceRate)
	stats := e.Statistics()
	assert.Equal(t, 0.0, stats.SuccessRate)

	// AND rates stay within [0, 100] under normal load
	e2 := testEngine(t, testSliceConfig(t, SliceHighThroughput, 50))
	for i := 0; i < 5; i++ {
		r := e2.ProcessBatch(testPackets(SliceHighThroughput, fmt.Sprintf("n%d", i), 20, 4))
		assert.GreaterOrEqual(t, r.SuccessRate, 0.0)
		assert.LessOrEqual(t, r.SuccessRate, 100.0)
		assert.GreaterOrEqual(t, r.QoSComplianceRate, 0.0)
		assert.LessOrEqual(t, r.QoSComplianceRate, 100.0)
	}
}

func TestEngine_LowLatency_EveryViolationAttemptsRetransmission(t *testing.T) {
	// GIVEN a small low-latency queue so occupancy drives latency past 10ms
	e := testEngine(t, testSliceConfig(t, SliceLowLatency, 4))

	// WHEN batches are processed
	violations, attempts := 0, 0
	for i := 0; i < 20; i++ {
		res := e.ProcessBatch(testPackets(SliceLowLatency, fmt.Sprintf("v%d", i), 4, 9))
		violations += res.QoSViolations
		attempts += res.PacketsRetransmitted + res.PacketsUndeliverable
		require.LessOrEqual(t, res.QueueLength, 4)
	}

	// THEN each violation triggered exactly one retransmission attempt
	assert.Equal(t, violations, attempts)
	stats := e.Statistics()
	assert.Equal(t, int64(violations), stats.QoSViolations)
	assert.Equal(t, int64(attempts), stats.TotalRetransmitted+stats.TotalUndeliverable)
}

func TestEngine_ServiceRate_DrainsBeforeAdmission(t *testing.T) {
	// GIVEN a full queue that services two entries per batch
	cfg := testSliceConfig(t, SliceHighThroughput, 4)
	cfg.ServiceRate = 2
	e := testEngine(t, cfg)
	e.ProcessBatch(testPackets(SliceHighThroughput, "a", 4, 5))

	// WHEN three more packets arrive
	res := e.ProcessBatch(testPackets(SliceHighThroughput, "b", 3, 5))

	// THEN two are admitted into the freed slots
	assert.Equal(t, 2, res.PacketsProcessed)
	assert.Equal(t, 1, res.PacketsDropped)
	assert.Equal(t, 4, res.QueueLength)
}

func TestEngine_Statistics_CumulativeAndHistory(t *testing.T) {
	e := testEngine(t, testSliceConfig(t, SliceHighThroughput, 100))
	for i := 0; i < 12; i++ {
		e.ProcessBatch(testPackets(SliceHighThroughput, fmt.Sprintf("s%d", i), 5, 5))
	}

	stats := e.Statistics()

	assert.Equal(t, int64(12), stats.Batches)
	assert.Equal(t, int64(60), stats.TotalReceived)
	assert.Equal(t, int64(60), stats.TotalProcessed)
	assert.Equal(t, 60, stats.QueueLength)
	assert.Len(t, stats.Recent, recentWindow)
	assert.Equal(t, int64(12), stats.Recent[len(stats.Recent)-1].Batch)
	assert.Equal(t, e.Thresholds(), stats.Thresholds)
}

func TestEngine_LowLatency_ReportsMeanReliability(t *testing.T) {
	e := testEngine(t, testSliceConfig(t, SliceLowLatency, 5000))
	e.ProcessBatch(testPackets(SliceLowLatency, "r", 10, 9))

	stats := e.Statistics()

	assert.GreaterOrEqual(t, stats.Reliability, 99.0)
	assert.LessOrEqual(t, stats.Reliability, 99.99)
}

func TestEngine_Reset_ClearsState(t *testing.T) {
	e := testEngine(t, testSliceConfig(t, SliceMassiveDevice, 10))
	packets := testPackets(SliceMassiveDevice, "r", 5, 2)
	for i := range packets {
		packets[i].DeviceID = fmt.Sprintf("device_%d", i)
	}
	e.ProcessBatch(packets)

	e.Reset()

	stats := e.Statistics()
	assert.Equal(t, int64(0), stats.TotalProcessed)
	assert.Equal(t, 0, stats.QueueLength)
	assert.Empty(t, stats.Recent)
	require.NotNil(t, stats.Devices)
	assert.Equal(t, 0, stats.Devices.Registered)
}

func TestEngine_DetailedResultsCapped(t *testing.T) {
	e := testEngine(t, testSliceConfig(t, SliceHighThroughput, 1000))
	res := e.ProcessBatch(testPackets(SliceHighThroughput, "d", 250, 5))
	assert.Equal(t, 250, res.PacketsProcessed)
	assert.Len(t, res.Details, MaxDetailedResults)
}

func TestEngine_Trace_RecordsDecisions(t *testing.T) {
	cfg := testSliceConfig(t, SliceLowLatency, 1)
	cfg.RedundancyCache = 0
	cfg.Trace = true
	e := testEngine(t, cfg)
	e.ProcessBatch(testPackets(SliceLowLatency, "a", 1, 7))
	e.ProcessBatch(testPackets(SliceLowLatency, "b", 1, 9))
	e.ProcessBatch(testPackets(SliceLowLatency, "c", 1, 9))

	stats := e.Statistics()

	require.NotNil(t, stats.Trace)
	assert.Equal(t, 3, stats.Trace.TotalDecisions)
	assert.Equal(t, 1, stats.Trace.PreemptedCount)
	assert.Equal(t, 1, stats.Trace.RejectedCount)
}

func TestEngine_ExpireDevices(t *testing.T) {
	e := testEngine(t, testSliceConfig(t, SliceMassiveDevice, 10))
	p := testPackets(SliceMassiveDevice, "x", 1, 1)
	p[0].DeviceID = "device_1"
	e.ProcessBatch(p)

	assert.Equal(t, 1, e.ExpireDevices(time.Now().Add(time.Hour)))
	assert.Equal(t, 0, e.Statistics().Devices.Active)

	ht := testEngine(t, testSliceConfig(t, SliceHighThroughput, 10))
	assert.Equal(t, 0, ht.ExpireDevices(time.Now()))
}

func TestEngine_ConcurrentCalls_SerializeSafely(t *testing.T) {
	// GIVEN one engine shared by several goroutines
	e := testEngine(t, testSliceConfig(t, SliceHighThroughput, 100000))

	// WHEN batches are submitted concurrently
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				e.ProcessBatch(testPackets(SliceHighThroughput, fmt.Sprintf("g%d_%d", g, i), 10, 5))
			}
		}(g)
	}
	wg.Wait()

	// THEN every packet is accounted for exactly once
	stats := e.Statistics()
	assert.Equal(t, int64(80), stats.Batches)
	assert.Equal(t, int64(800), stats.TotalProcessed)
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	cfg := testSliceConfig(t, SliceHighThroughput, -1)
	_, err := NewEngine(cfg, rng)
	assert.True(t, errors.Is(err, ErrInvalidCapacity), "got %v", err)

	cfg = testSliceConfig(t, SliceHighThroughput, 10)
	cfg.Size = IntRange{Min: 10, Max: 1}
	_, err = NewEngine(cfg, rng)
	assert.True(t, errors.Is(err, ErrInvalidProfile), "got %v", err)

	_, err = NewEngine(testSliceConfig(t, SliceHighThroughput, 10), nil)
	assert.Error(t, err)
}
