package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slicesim/slicesim/sim"
)

func TestGenerateTraffic_ConfiguredShares(t *testing.T) {
	// GIVEN the default profiles
	cfg := sim.DefaultConfig()

	// WHEN one constant generation of 3000 packets runs
	report, err := generateTraffic(&cfg, generateOptions{Volume: 3000, Pattern: "constant", Steps: 1, Packets: true})

	// THEN packets are split 40/30/30
	require.NoError(t, err)
	assert.Len(t, report.Packets[sim.SliceHighThroughput], 1200)
	assert.Len(t, report.Packets[sim.SliceLowLatency], 900)
	assert.Len(t, report.Packets[sim.SliceMassiveDevice], 900)
	assert.Equal(t, int64(3000), report.Statistics.TotalGenerated)
	require.Len(t, report.Generations, 1)
	assert.Equal(t, 1.0, report.Generations[0].Multiplier)
}

func TestGenerateTraffic_StepsAndEvenSplit(t *testing.T) {
	cfg := sim.DefaultConfig()

	report, err := generateTraffic(&cfg, generateOptions{Volume: 300, Pattern: "constant", Steps: 4, Even: true})

	require.NoError(t, err)
	assert.Len(t, report.Generations, 4)
	assert.Equal(t, int64(4*300), report.Statistics.TotalGenerated)
	assert.Equal(t, int64(400), report.Statistics.BySlice[sim.SliceLowLatency].Generated)
	assert.Nil(t, report.Packets, "packets are omitted unless requested")
}

func TestGenerateTraffic_Mix(t *testing.T) {
	cfg := sim.DefaultConfig()
	shares := map[sim.SliceType]float64{
		sim.SliceHighThroughput: 0.5,
		sim.SliceLowLatency:     0.5,
	}

	report, err := generateTraffic(&cfg, generateOptions{Volume: 100, Steps: 1, Shares: shares, Packets: true})

	require.NoError(t, err)
	assert.Len(t, report.Packets[sim.SliceHighThroughput], 50)
	assert.Len(t, report.Packets[sim.SliceLowLatency], 50)
	assert.Empty(t, report.Packets[sim.SliceMassiveDevice])
}

func TestGenerateTraffic_Rejects(t *testing.T) {
	cfg := sim.DefaultConfig()
	tests := []struct {
		name string
		opts generateOptions
	}{
		{"negative volume", generateOptions{Volume: -1, Steps: 1}},
		{"no steps", generateOptions{Volume: 10}},
		{"even with mix", generateOptions{Volume: 10, Steps: 1, Even: true, Shares: map[sim.SliceType]float64{sim.SliceLowLatency: 1}}},
		{"shares off by more than tolerance", generateOptions{Volume: 10, Steps: 1, Shares: map[sim.SliceType]float64{sim.SliceLowLatency: 0.9}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := generateTraffic(&cfg, tc.opts)
			assert.Error(t, err)
		})
	}
}

func TestParseShares(t *testing.T) {
	got, err := parseShares(map[string]string{"high-throughput": "0.6", "low-latency": "0.4"})
	require.NoError(t, err)
	assert.Equal(t, map[sim.SliceType]float64{sim.SliceHighThroughput: 0.6, sim.SliceLowLatency: 0.4}, got)

	got, err = parseShares(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseShares(map[string]string{"low-latency": "half"})
	assert.Error(t, err)
}
