package orchestrator

import (
	"context"
	"log/slog"
	"time"
)

// Daemon runs every source once immediately and then every interval until
// ctx is cancelled.
func (o *Orchestrator) Daemon(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	slog.InfoContext(ctx, "starting scrape daemon", "interval", interval)

	o.RunAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.RunAll(ctx)
		}
	}
}
