package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/config"
	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/journal"
)

var (
	reportSince time.Duration
	reportJSON  bool
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the audit trail of lifecycle transitions",
	Long: `Replay the append-only audit journal and print every lifecycle
transition: what changed state, when, and why. This is the record of
everything the engine did.`,
	Example: `  costopt report                 # Last 7 days
  costopt report --since 720h    # Last 30 days
  costopt report --json          # Machine-readable output`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().DurationVar(&reportSince, "since", 7*24*time.Hour, "How far back to report")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Emit JSON lines instead of a table")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	since := time.Now().Add(-reportSince)
	count := 0

	encoder := json.NewEncoder(os.Stdout)
	err = journal.Replay(cfg.Journal.Dir, since, func(entry *journal.Entry) error {
		count++
		if reportJSON {
			return encoder.Encode(entry)
		}
		fmt.Printf("%s  %-22s %s -> %s  %s\n",
			entry.Event.Timestamp.UTC().Format("2006-01-02 15:04"),
			entry.Event.ResourceID,
			entry.Event.From,
			entry.Event.To,
			entry.Event.Reason)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}

	if !reportJSON {
		fmt.Printf("\n%d transition(s) since %s\n", count, since.UTC().Format("2006-01-02 15:04"))
	}
	return nil
}
