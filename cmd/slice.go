package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/rpc"
)

var (
	sliceName   string
	sliceListen string
)

// sliceCmd serves a single slice engine for a remote orchestrator
var sliceCmd = &cobra.Command{
	Use:   "slice",
	Short: "Serve one slice engine over gRPC",
	Long: "Serve one slice engine over gRPC. Point a slice's `endpoint` in the\n" +
		"simulation config at this address to move it out of the orchestrator process.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setLogLevel("info"); err != nil {
			logrus.Fatal(err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
		lis, err := net.Listen("tcp", sliceListen)
		if err != nil {
			logrus.Fatalf("Failed to listen on %s: %v", sliceListen, err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := serveSlice(ctx, cfg, sim.SliceType(sliceName), lis); err != nil {
			logrus.Fatalf("Slice server failed: %v", err)
		}
	},
}

// serveSlice serves slice's engine on lis until ctx is done.
func serveSlice(ctx context.Context, cfg *sim.Config, slice sim.SliceType, lis net.Listener) error {
	sc, ok := cfg.Slice(slice)
	if !ok {
		return fmt.Errorf("slice %q is not configured", slice)
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	engine, err := sim.NewEngine(sc, rng.ForSubsystem(sim.SubsystemEngine(slice)))
	if err != nil {
		return err
	}

	gs := grpc.NewServer()
	rpc.RegisterSliceServer(gs, rpc.NewEngineServer(engine))
	go func() {
		<-ctx.Done()
		logrus.Infof("Stopping %s engine", slice)
		gs.GracefulStop()
	}()

	logrus.Infof("Serving %s engine on %s", slice, lis.Addr())
	if err := gs.Serve(lis); err != nil {
		return fmt.Errorf("serving %s: %w", slice, err)
	}
	return nil
}

func init() {
	sliceCmd.Flags().StringVar(&sliceName, "slice", string(sim.SliceHighThroughput), "Slice to serve (high-throughput, low-latency, massive-device)")
	sliceCmd.Flags().StringVar(&sliceListen, "listen", ":9100", "gRPC listen address")

	rootCmd.AddCommand(sliceCmd)
}
