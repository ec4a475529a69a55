package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

var statusState string

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked resources and their lifecycle states",
	Long: `List every tracked resource with its current lifecycle state, last
verdict, owner, and scheduled deletion time if one is pending.`,
	Example: `  costopt status                           # Everything
  costopt status --state pending_deletion  # Only pending deletions`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusState, "state", "", "Filter by lifecycle state")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	eng, err := buildEngineFromFile(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	records, err := eng.store.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	counts := make(map[types.LifecycleState]int)
	shown := 0
	for _, rec := range records {
		counts[rec.State]++
		if statusState != "" && string(rec.State) != statusState {
			continue
		}
		shown++

		line := fmt.Sprintf("%-22s %-16s %-13s owner=%s", rec.ID, rec.State, rec.LastVerdict.Verdict, ownerLabel(rec.Owner))
		if rec.ScheduledDeletionAt != nil {
			line += fmt.Sprintf("  deletes %s", rec.ScheduledDeletionAt.UTC().Format("2006-01-02 15:04"))
		}
		fmt.Println(line)
	}

	fmt.Printf("\n%d shown of %d tracked", shown, len(records))
	for _, state := range []types.LifecycleState{
		types.StateActive, types.StateFlagged, types.StatePendingDeletion,
		types.StateExempted, types.StateDeleted,
	} {
		if counts[state] > 0 {
			fmt.Printf("  %s=%d", state, counts[state])
		}
	}
	fmt.Println()
	return nil
}

func ownerLabel(owner types.Owner) string {
	if owner.Unknown() {
		return "(unknown)"
	}
	return owner.Identity
}
