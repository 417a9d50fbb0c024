package commands

import (
	"fmt"
	"lapets-backend/lib/serviceutil"
	"lapets-backend/services/orchestrator"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	runSource  *string
	runShelter *string
)

func init() {
	runSource = runCmd.Flags().String("source", "", "Only scrape the source with this key.")
	runShelter = runCmd.Flags().String("shelter", "", "Only scrape the shelter with this slug.")
	rootCmd.AddCommand(runCmd)
}

func printSummary(summary orchestrator.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Shelter", "Found", "Duration", "Error"})

	for _, source := range summary.Sources {
		for _, r := range source.Shelters {
			errText := ""
			if r.Err != nil {
				errText = r.Err.Error()
			}
			t.AppendRow(table.Row{source.SourceKey, r.ShelterName, len(r.Animals), r.Duration.Round(time.Millisecond), errText})
		}
		if source.ReconcileErr != nil {
			t.AppendRow(table.Row{source.SourceKey, "", "", "", "store: " + source.ReconcileErr.Error()})
		}
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d sources", summary.SuccessfulSources, summary.TotalSources),
		fmt.Sprintf("%d/%d shelters", summary.SuccessfulShelters, summary.TotalShelters),
		summary.TotalAnimalsFound,
		summary.TotalDuration.Round(time.Millisecond),
		"",
	})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

var runCmd = &cobra.Command{
	Use:   "run [--source <key>] [--shelter <slug>]",
	Short: "Scrapes shelters once and reconciles the results into the database.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.close()

		ctx := cmd.Context()
		var summary orchestrator.Summary
		switch {
		case *runShelter != "":
			summary, err = a.orchestrator.RunShelter(ctx, *runShelter)
		case *runSource != "":
			summary, err = a.orchestrator.RunOne(ctx, *runSource)
		default:
			summary = a.orchestrator.RunAll(ctx)
		}
		if err != nil {
			serviceutil.Fatal("failed to run scrape", err)
		}

		printSummary(summary)
		if len(summary.Failed()) > 0 {
			os.Exit(1)
		}
	},
}
