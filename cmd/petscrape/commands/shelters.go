package commands

import (
	"lapets-backend/lib/serviceutil"
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initSheltersCmd)
	rootCmd.AddCommand(sheltersCmd)
}

var initSheltersCmd = &cobra.Command{
	Use:   "init-shelters",
	Short: "Writes the built in shelter catalog to the database.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.close()

		err = a.registry.InitializeShelterMetadata(cmd.Context(), a.store)
		if err != nil {
			serviceutil.Fatal("failed to initialize shelters", err)
		}
		slog.Info("shelters initialized", "count", len(a.registry.Shelters()))
	},
}

var sheltersCmd = &cobra.Command{
	Use:   "shelters",
	Short: "Prints the stored shelters with their available animals.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.close()

		shelters, err := a.store.ListShelters(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to list shelters", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Slug", "Name", "Source", "City", "Available", "Last Scraped"})
		for _, s := range shelters {
			lastScraped := "never"
			if !s.LastScrapedAt.IsZero() {
				lastScraped = s.LastScrapedAt.Format(time.DateTime)
			}
			t.AppendRow(table.Row{s.Slug, s.Name, s.SourceKey, s.City, s.ActiveAnimals, lastScraped})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
