package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slicesim/slicesim/sim"
	"github.com/slicesim/slicesim/sim/workload"
)

var (
	genVolume  int
	genPattern string
	genElapsed float64
	genSteps   int
	genEven    bool
	genMix     map[string]string
	genPackets bool
)

// generateCmd prints synthesized traffic without running any engine
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Synthesize traffic and print it as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setLogLevel("warn"); err != nil {
			logrus.Fatal(err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
		shares, err := parseShares(genMix)
		if err != nil {
			logrus.Fatal(err)
		}
		report, err := generateTraffic(cfg, generateOptions{
			Volume:  genVolume,
			Pattern: genPattern,
			Elapsed: genElapsed,
			Steps:   genSteps,
			Even:    genEven,
			Shares:  shares,
			Packets: genPackets,
		})
		if err != nil {
			logrus.Fatalf("Generation failed: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logrus.Fatalf("Failed to encode report: %v", err)
		}
	},
}

type generateOptions struct {
	Volume  int
	Pattern string
	Elapsed float64 // time of the first step
	Steps   int     // one generation per time unit
	Even    bool
	Shares  map[sim.SliceType]float64 // overrides the configured shares
	Packets bool                      // include the last step's packets
}

type generateReport struct {
	Generations []workload.GenerationSummary   `json:"generations"`
	Statistics  workload.GeneratorStatistics   `json:"statistics"`
	Packets     map[sim.SliceType][]sim.Packet `json:"packets,omitempty"`
}

// generateTraffic runs opts.Steps generations on a synthesizer seeded from cfg.
func generateTraffic(cfg *sim.Config, opts generateOptions) (generateReport, error) {
	if opts.Volume < 0 {
		return generateReport{}, fmt.Errorf("volume must be non-negative, got %d", opts.Volume)
	}
	if opts.Steps < 1 {
		return generateReport{}, fmt.Errorf("steps must be >= 1, got %d", opts.Steps)
	}
	if opts.Even && len(opts.Shares) > 0 {
		return generateReport{}, fmt.Errorf("--even and --mix are mutually exclusive")
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	synth, err := workload.NewSynthesizer(cfg, rng.ForSubsystem(sim.SubsystemSynthesizer))
	if err != nil {
		return generateReport{}, err
	}

	var last map[sim.SliceType][]sim.Packet
	for step := 0; step < opts.Steps; step++ {
		elapsed := opts.Elapsed + float64(step)
		switch {
		case opts.Even:
			last = synth.GenerateEven(opts.Volume, opts.Pattern, elapsed)
		case len(opts.Shares) > 0:
			last, err = synth.GenerateMix(opts.Volume, opts.Pattern, elapsed, opts.Shares)
			if err != nil {
				return generateReport{}, err
			}
		default:
			last = synth.Generate(opts.Volume, opts.Pattern, elapsed)
		}
	}

	report := generateReport{
		Generations: synth.History(opts.Steps),
		Statistics:  synth.Statistics(),
	}
	if opts.Packets {
		report.Packets = last
	}
	return report, nil
}

// parseShares converts slice=share flag pairs.
func parseShares(raw map[string]string) (map[sim.SliceType]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[sim.SliceType]float64, len(raw))
	for k, v := range raw {
		share, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("share for %s: %w", k, err)
		}
		out[sim.SliceType(k)] = share
	}
	return out, nil
}

func init() {
	generateCmd.Flags().IntVar(&genVolume, "volume", 1000, "Packets per generation before the pattern multiplier")
	generateCmd.Flags().StringVar(&genPattern, "pattern", "constant", "Traffic pattern (constant, linear_increase, burst, wave, poisson, gaussian)")
	generateCmd.Flags().Float64Var(&genElapsed, "elapsed", 0, "Elapsed time units at the first generation")
	generateCmd.Flags().IntVar(&genSteps, "steps", 1, "Number of consecutive generations, one time unit apart")
	generateCmd.Flags().BoolVar(&genEven, "even", false, "Split each generation evenly across slices instead of by share")
	generateCmd.Flags().StringToStringVar(&genMix, "mix", nil, "Per-slice shares overriding the config, e.g. high-throughput=0.5,low-latency=0.25,massive-device=0.25")
	generateCmd.Flags().BoolVar(&genPackets, "packets", false, "Include the packets of the last generation")

	rootCmd.AddCommand(generateCmd)
}
