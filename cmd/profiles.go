package cmd

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slicesim/slicesim/server"
)

var profilesJSON bool

// profilesCmd lists the configured slices and their QoS thresholds
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List slice profiles, queue policies and QoS thresholds",
	Run: func(cmd *cobra.Command, args []string) {
		if err := setLogLevel("warn"); err != nil {
			logrus.Fatal(err)
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
		profiles := server.Profiles(*cfg)
		if !profilesJSON {
			renderProfiles(os.Stdout, profiles, cfg.Traffic.Patterns)
			return
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(profiles); err != nil {
			logrus.Fatalf("Failed to encode profiles: %v", err)
		}
	},
}

func init() {
	profilesCmd.Flags().BoolVar(&profilesJSON, "json", false, "Print profiles as JSON")

	rootCmd.AddCommand(profilesCmd)
}
