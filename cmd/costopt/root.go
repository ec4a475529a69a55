package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string

	rootCmd = &cobra.Command{
		Use:   "costopt",
		Short: "Idle Resource Lifecycle Engine",
		Long: `Costopt - Idle Resource Lifecycle Engine

Costopt scans cloud resources, classifies idle ones from utilization
metrics, and walks them through a safe deletion lifecycle: flag, notify
the owner, wait out a grace period, re-verify, then delete.

Owners stay in control the whole way: a single exemption tag cancels
any pending deletion, and nothing is ever deleted without a fresh
safety check at fire time.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Costopt {{.Version}} - Idle Resource Lifecycle Engine
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "costopt.yaml", "Path to config file")
}
