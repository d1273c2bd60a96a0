package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/orchestrator"
)

var (
	trafficVolume int
	duration      int
	pattern       string
	tickInterval  time.Duration
	quiet         bool
	jsonOutput    bool
)

// runCmd executes one run in-process and prints its summary
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation to completion and print its summary",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setLogLevel("warn"); err != nil {
			logrus.Fatal(err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
		if tickInterval > 0 {
			cfg.Loop.TickInterval = tickInterval
		}
		req := orchestrator.RunRequest{TrafficVolume: trafficVolume, Duration: duration, Pattern: pattern}
		logrus.Infof("Starting run: volume=%d duration=%d pattern=%s tick=%s seed=%d",
			req.TrafficVolume, req.Duration, req.Pattern, cfg.Loop.TickInterval, cfg.Seed)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var progress io.Writer
		if !quiet && !jsonOutput {
			progress = os.Stderr
		}
		view, err := simulate(ctx, *cfg, req, progress)
		if err != nil {
			logrus.Fatalf("Run failed: %v", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(view); err != nil {
				logrus.Fatalf("Failed to encode run: %v", err)
			}
		} else {
			renderSummary(os.Stdout, view)
		}
		if view.Status == orchestrator.StatusError {
			os.Exit(1)
		}
	},
}

// simulate runs req to a terminal state. When ctx is cancelled the run is
// stopped and its final view returned. Progress, if non-nil, receives a
// progress bar driven by published snapshots.
func simulate(ctx context.Context, cfg sim.Config, req orchestrator.RunRequest, progress io.Writer) (orchestrator.RunView, error) {
	hub := orchestrator.NewHub(orchestrator.DefaultMailboxSize)
	defer hub.Close()

	var finish func()
	if progress != nil {
		bar := newTickBar(req.Duration, progress)
		hub.Subscribe(orchestrator.SubscriberFunc{ID: "progress", Fn: func(_ context.Context, snap orchestrator.Snapshot) error {
			return bar.Set(min(int(snap.Elapsed), req.Duration))
		}})
		finish = func() { _ = bar.Finish() }
	}

	orch, err := orchestrator.New(cfg, orchestrator.WithPublisher(hub))
	if err != nil {
		return orchestrator.RunView{}, err
	}
	defer func() { _ = orch.Shutdown(context.Background()) }()

	id, err := orch.CreateRun(req)
	if err != nil {
		return orchestrator.RunView{}, err
	}
	if err := orch.StartRun(ctx, id); err != nil {
		return orchestrator.RunView{}, err
	}

	view, err := orch.Wait(ctx, id)
	if err != nil && ctx.Err() != nil {
		logrus.Warnf("Interrupted, stopping run %s", id)
		if err := orch.StopRun(id); err != nil && !errors.Is(err, orchestrator.ErrInvalidTransition) {
			return orchestrator.RunView{}, err
		}
		view, err = orch.Wait(context.Background(), id)
	}
	if err != nil {
		return orchestrator.RunView{}, fmt.Errorf("waiting for run %s: %w", id, err)
	}

	hub.Close()
	if finish != nil {
		finish()
	}
	return view, nil
}

func init() {
	runCmd.Flags().IntVar(&trafficVolume, "volume", 1000, "Total packets to generate over the run")
	runCmd.Flags().IntVar(&duration, "duration", 60, "Run length in time units (ticks)")
	runCmd.Flags().StringVar(&pattern, "pattern", "constant", "Traffic pattern (constant, linear_increase, burst, wave)")
	runCmd.Flags().DurationVar(&tickInterval, "tick", 0, "Wall-clock length of one time unit (overrides the config, e.g. 10ms)")
	runCmd.Flags().BoolVar(&quiet, "quiet", false, "Hide the progress bar")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final run as JSON")

	rootCmd.AddCommand(runCmd)
}
