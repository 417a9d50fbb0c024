package commands

import (
	"fmt"
	"lapets-backend/lib/serviceutil"
	"lapets-backend/lib/timezone"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statusRuns *int

func init() {
	statusRuns = statusCmd.Flags().IntP("runs", "n", 10, "The number of recent runs to print.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [-n <runs>]",
	Short: "Prints catalog freshness and the most recent scrape runs.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.close()
		ctx := cmd.Context()

		status, err := a.store.Status(ctx, timezone.Now())
		if err != nil {
			serviceutil.Fatal("failed to read status", err)
		}
		lastSuccess := "never"
		if !status.LastSuccessAt.IsZero() {
			lastSuccess = status.LastSuccessAt.Format(time.DateTime)
		}
		fmt.Printf(
			"available: %d\nlast success: %s\nstale: %v\nincomplete: %v\nneeds scrape: %v\n\n",
			status.AvailableAnimals, lastSuccess,
			status.IsStale, status.IsIncomplete, status.NeedsScrape,
		)

		runs, err := a.store.RecentRuns(ctx, *statusRuns)
		if err != nil {
			serviceutil.Fatal("failed to list runs", err)
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Started", "Source", "OK", "Found", "Added", "Updated", "Retired", "Failed", "Duration", "Error"})
		for _, r := range runs {
			t.AppendRow(table.Row{
				r.StartedAt.Format(time.DateTime), r.SourceKey, r.Success,
				r.Found, r.Added, r.Updated, r.Retired, r.Failed,
				r.Duration, r.Error,
			})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
