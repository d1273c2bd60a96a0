package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/rpc"
	"github.com/slicesim/slicesim/sim/workload"
)

func TestServeSlice_ServesEngineUntilCancelled(t *testing.T) {
	// GIVEN a low-latency engine served on an in-memory listener
	cfg := sim.DefaultConfig()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveSlice(ctx, &cfg, sim.SliceLowLatency, lis) }()

	c, err := rpc.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	// WHEN a synthesized low-latency batch is sent
	synth, err := workload.NewSynthesizer(&cfg, sim.NewPartitionedRNG(sim.NewSimulationKey(1)).ForSubsystem(sim.SubsystemSynthesizer))
	require.NoError(t, err)
	batch := synth.Generate(100, "constant", 0)[sim.SliceLowLatency]
	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	res, err := c.ProcessBatch(reqCtx, batch)

	// THEN the remote engine processes it
	require.NoError(t, err)
	assert.Equal(t, sim.SliceLowLatency, res.Slice)
	assert.Equal(t, len(batch), res.PacketsReceived)

	// WHEN the context is cancelled
	cancel()

	// THEN the server stops cleanly
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("slice server did not stop")
	}
}

func TestServeSlice_UnknownSlice(t *testing.T) {
	cfg := sim.DefaultConfig()
	lis := bufconn.Listen(1 << 10)
	defer func() { _ = lis.Close() }()

	err := serveSlice(context.Background(), &cfg, sim.SliceType("voice"), lis)

	assert.ErrorContains(t, err, "not configured")
}
