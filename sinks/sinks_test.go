package sinks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
)

func testSnapshot() orchestrator.Snapshot {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return orchestrator.Snapshot{
		RunID:     "sim_0123456789ab",
		Tick:      7,
		Timestamp: ts,
		Status:    orchestrator.StatusRunning,
		Slices: map[sim.SliceType]*sim.BatchResult{
			sim.SliceMassiveDevice: {
				Slice:             sim.SliceMassiveDevice,
				PacketsReceived:   100,
				PacketsProcessed:  60,
				PacketsAggregated: 40,
				QueueLength:       60,
				SuccessRate:       100,
				Metrics: sim.BatchMetrics{
					Latency:  sim.Distribution{Mean: 420, Max: 900},
					DropRate: 1.2,
				},
			},
			sim.SliceHighThroughput: {Slice: sim.SliceHighThroughput, PacketsReceived: 10, PacketsProcessed: 10},
			sim.SliceLowLatency:     sim.EmptyResult(sim.SliceLowLatency, ts),
		},
		Failures: map[sim.SliceType]string{sim.SliceLowLatency: "deadline exceeded"},
	}
}

func TestSliceRows_MergeOrderAndFields(t *testing.T) {
	rows := sliceRows(testSnapshot())

	require.Len(t, rows, 3)
	assert.Equal(t, "high-throughput", rows[0].Slice)
	assert.Equal(t, "low-latency", rows[1].Slice)
	assert.Equal(t, "massive-device", rows[2].Slice)

	assert.Equal(t, uint8(1), rows[1].Failed)
	assert.Equal(t, uint8(0), rows[0].Failed)

	md := rows[2]
	assert.Equal(t, "sim_0123456789ab", md.RunID)
	assert.Equal(t, int64(7), md.Tick)
	assert.Equal(t, uint32(60), md.Processed)
	assert.Equal(t, uint32(40), md.Aggregated)
	assert.Equal(t, 420.0, md.LatencyMean)
	assert.Equal(t, 900.0, md.LatencyMax)
	assert.Equal(t, 1.2, md.DropRate)
}

func TestSliceRow_ValuesMatchColumnCount(t *testing.T) {
	// 21 columns in the CREATE TABLE statement
	row := sliceRows(testSnapshot())[0]
	assert.Len(t, row.values(), 21)
}

func TestSliceRows_EmptySnapshot(t *testing.T) {
	assert.Empty(t, sliceRows(orchestrator.Snapshot{RunID: "sim_x"}))
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "slicesim.snapshots.sim_0123456789ab", subjectFor(DefaultSubjectPrefix, "sim_0123456789ab"))
}

func TestDecodeRuns_SkipsExpired(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := orchestrator.RunView{
		ID:        "sim_a",
		Request:   orchestrator.RunRequest{TrafficVolume: 1000, Duration: 60, Pattern: "wave"},
		Status:    orchestrator.StatusCompleted,
		CreatedAt: created,
		Totals:    orchestrator.RunTotals{Ticks: 60, PacketsProcessed: 900},
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)

	views, expired, err := decodeRuns([]string{"sim_a", "sim_b"}, []any{string(data), nil})

	require.NoError(t, err)
	assert.Equal(t, []string{"sim_b"}, expired)
	require.Len(t, views, 1)
	assert.Equal(t, v.ID, views[0].ID)
	assert.Equal(t, v.Request, views[0].Request)
	assert.Equal(t, v.Totals, views[0].Totals)
	assert.True(t, views[0].CreatedAt.Equal(created))
}

func TestDecodeRuns_CorruptValue(t *testing.T) {
	_, _, err := decodeRuns([]string{"sim_a"}, []any{"{not json"})
	assert.ErrorContains(t, err, "sim_a")
}

func TestSubscribersImplementInterfaces(t *testing.T) {
	var _ orchestrator.Subscriber = (*NATSPublisher)(nil)
	var _ orchestrator.Subscriber = (*ClickHouseWriter)(nil)
	var _ orchestrator.RunStore = (*RedisRunStore)(nil)
}
