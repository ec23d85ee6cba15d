package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "glide",
	Short: "glide - a replacement controller for rolling container upgrades",
	Long: `glide drives one workload's instances from their current version to
a target version, honoring a health-capacity floor and an over-capacity
ceiling while the replacement is in flight.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"glide version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(rolloutCmd)
}

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Drive a rolling replacement to completion",
}

func init() {
	rolloutCmd.AddCommand(rolloutRunCmd)
}
