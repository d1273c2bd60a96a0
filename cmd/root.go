// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slicesim/slicesim/sim"
)

var (
	configPath string // sim.Config YAML; empty means sim.DefaultConfig
	seed       int64  // overrides the configured seed when set
	logLevel   string // empty means the command's default
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "slicesim",
	Short: "Network slice traffic simulator",
	Long: "slicesim synthesizes traffic for three network slices (high-throughput,\n" +
		"low-latency, massive-device), pushes it through per-slice admission and\n" +
		"QoS engines and reports the merged results tick by tick.",
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setLogLevel applies --log, falling back to def when the flag is unset.
func setLogLevel(def string) error {
	name := logLevel
	if name == "" {
		name = def
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	logrus.SetLevel(level)
	return nil
}

// loadConfig reads --config (or the defaults) and applies --seed.
func loadConfig(cmd *cobra.Command) (*sim.Config, error) {
	var cfg *sim.Config
	if configPath == "" {
		def := sim.DefaultConfig()
		cfg = &def
	} else {
		loaded, err := sim.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	return cfg, nil
}

// init sets up the flags shared by every subcommand
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Simulation config YAML (defaults to the built-in three-slice profile)")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", 42, "Seed for traffic synthesis and engine sampling (overrides the config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
}
