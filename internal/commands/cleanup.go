package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cleanupHours  int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete snapshots older than the retention window",
	Long: `Delete stored snapshots older than the retention window.

Examples:
  screener-back cleanup                 # Use RETENTION_HOURS
  screener-back cleanup --hours 48
  screener-back cleanup --dry-run       # Count only, show the oldest rows`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		application, cfg, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		hours := cfg.Retention.Hours
		if cmd.Flags().Changed("hours") {
			hours = cleanupHours
		}

		report, err := application.NewRetentionService().Cleanup(ctx, hours, cleanupDryRun)
		if err != nil {
			return err
		}

		cutoff := report.Cutoff.Format("2006-01-02 15:04:05")
		if report.DryRun {
			fmt.Printf("[DRY RUN] %d snapshots older than %s UTC would be deleted\n", report.Matched, cutoff)
			for _, snap := range report.Examples {
				fmt.Printf("  %-12s %-8s %s\n", snap.Symbol, snap.MarketType, snap.Timestamp.UTC().Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		fmt.Printf("✅ Deleted %d snapshots older than %s UTC\n", report.Deleted, cutoff)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().IntVar(&cleanupHours, "hours", 24, "Retention window in hours (defaults to RETENTION_HOURS)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Only count the rows that would be deleted")
}
