package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slicesim/slicesim/sim"
)

type nilDispatcher struct{}

func (nilDispatcher) ProcessBatch(context.Context, []sim.Packet) (*sim.BatchResult, error) {
	return nil, nil
}

func TestDispatchWithTimeout(t *testing.T) {
	tests := []struct {
		name    string
		d       Dispatcher
		wantErr string
		fault   bool
	}{
		{"error passes through", failingDispatcher{err: errors.New("refused")}, "refused", false},
		{"timeout", slowDispatcher{delay: time.Second}, context.DeadlineExceeded.Error(), false},
		{"panic becomes fault", panickingDispatcher{}, "panicked", true},
		{"nil result", nilDispatcher{}, "no result", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := dispatchWithTimeout(context.Background(), sim.SliceLowLatency, tc.d, nil, 10*time.Millisecond)

			assert.Nil(t, res)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			var fe *faultError
			assert.Equal(t, tc.fault, errors.As(err, &fe))
		})
	}
}

func TestLocalDispatcher_ProcessBatch(t *testing.T) {
	cfg := sim.DefaultConfig()
	sc, _ := cfg.Slice(sim.SliceHighThroughput)
	engine, err := sim.NewEngine(sc, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	d := NewLocalDispatcher(engine)

	packets := []sim.Packet{{ID: "p1", Slice: sim.SliceHighThroughput, Size: 1000, Priority: 5}}
	res, err := dispatchWithTimeout(context.Background(), sim.SliceHighThroughput, d, packets, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.PacketsProcessed)
	assert.Equal(t, int64(1), d.Engine().Statistics().TotalProcessed)

	// a cancelled context is refused before the engine runs
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.ProcessBatch(ctx, packets)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), d.Engine().Statistics().TotalProcessed)
}

func TestLocalDispatchers_OnePerSlice(t *testing.T) {
	cfg := sim.DefaultConfig()
	m, err := LocalDispatchers(&cfg, "sim_x", sim.NewPartitionedRNG(sim.NewSimulationKey(1)))
	require.NoError(t, err)
	for _, slice := range sim.SliceOrder {
		d, ok := m[slice].(*LocalDispatcher)
		require.True(t, ok, "%s", slice)
		assert.Equal(t, slice, d.Engine().Slice())
	}
}
