package main

import (
	"context"
	"lapets-backend/cmd/petscrape/commands"
	"lapets-backend/lib/serviceutil"
	"lapets-backend/lib/telemetry"
	"log/slog"
	"time"
)

func main() {
	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(false)
	t, err := telemetry.SetupFromEnv(ctx, "petscrape")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := t.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	commands.ExecuteContext(ctx)
}
