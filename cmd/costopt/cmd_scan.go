package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan pass over all configured regions",
	Long: `Run a single scan pass: enumerate resources, evaluate idleness,
resolve owners, and advance each resource's lifecycle. Idle resources
get flagged and their owners notified; resources idle through the
notice period get a deletion scheduled after the grace period.

Nothing is deleted by a scan. Deletion happens only through the sweep
safety gate.`,
	Example: `  costopt scan                      # Scan with the default config
  costopt scan --config prod.yaml   # Scan a specific environment`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, err := buildEngineFromFile(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	fmt.Printf("🔍 Scanning %d region(s)...\n\n", len(eng.cfg.Regions))

	result, err := eng.orch.Run(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	for _, pass := range result.Passes {
		fmt.Printf("  %s/%s: %d scanned, %d skipped, %d transitions",
			pass.Region, pass.ResourceType, pass.Scanned, pass.Skipped, len(pass.Transitions))
		if len(pass.Failures) > 0 {
			fmt.Printf(", %d failures", len(pass.Failures))
		}
		fmt.Println()

		for _, event := range pass.Transitions {
			fmt.Printf("    %s: %s -> %s (%s)\n", event.ResourceID, event.From, event.To, event.Reason)
		}
	}

	for _, failure := range result.Failures {
		fmt.Printf("  ❌ pass failed: %s\n", failure)
	}

	fmt.Printf("\n✅ Scan complete in %s\n", result.Duration.Round(time.Millisecond))
	return nil
}
