package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/gate"
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the deletion safety gate over due schedules",
	Long: `Re-verify and execute deletions whose grace period has elapsed.

Every due resource is checked again at fire time: it must still exist,
must not carry the exemption tag, and must still evaluate as idle on
fresh metrics. Any disagreement aborts the deletion.`,
	Example: `  costopt sweep   # Typically invoked by the schedule trigger or a timer`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, err := buildEngineFromFile(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	result, err := eng.gate.Sweep(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("🧹 Sweep: %d due\n", result.Due)
	fmt.Printf("   deleted: %d, reflagged: %d, exempted: %d, already gone: %d, skipped: %d, failed: %d\n",
		result.Outcomes[gate.OutcomeDeleted],
		result.Outcomes[gate.OutcomeReflagged],
		result.Outcomes[gate.OutcomeExempted],
		result.Outcomes[gate.OutcomeAlreadyGone],
		result.Outcomes[gate.OutcomeSkipped],
		result.Outcomes[gate.OutcomeFailed])

	for _, failure := range result.Failures {
		fmt.Printf("   ❌ %s\n", failure)
	}
	return nil
}
