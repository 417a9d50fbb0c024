package commands

import (
	"lapets-backend/lib/serviceutil"
	"lapets-backend/lib/telemetry"
	"lapets-backend/services/api"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveNoDaemon *bool

func init() {
	serveNoDaemon = serveCmd.Flags().Bool("no-daemon", false, "Only serve the api, never scrape on a schedule.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--no-daemon]",
	Short: "Serves the api and scrapes every shelter on an interval.",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openApp()
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.close()
		ctx := cmd.Context()

		telemetry.InstrumentPerfStats(ctx, 30*time.Second)

		if !*serveNoDaemon {
			go a.orchestrator.Daemon(ctx, a.cfg.Scrape.interval())
		}

		gin.SetMode(gin.ReleaseMode)
		server := api.NewServer(a.store, a.orchestrator, api.Options{
			ApiKey:       a.cfg.Api.ApiKey,
			AllowOrigins: a.cfg.Api.AllowOrigins,
		})
		err = serviceutil.StartHttpServer(ctx, a.cfg.Api.Port, server.Handler())
		if err != nil {
			serviceutil.Fatal("http server stopped", err)
		}
	},
}
