package files

// scheduler.go runs the background sweep that expires stored uploads.
//
// The sweeper is long-running and context-aware for graceful shutdown. It
// logs progress and errors but never fails the application over a single
// sweep; a missed cycle just leaves files for the next one.

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper removes expired uploads every interval until ctx is
// cancelled. It sweeps once immediately on start.
func (d *Dir) StartSweeper(ctx context.Context, ttl, interval time.Duration) {
	slog.Info("upload sweeper started",
		"dir", d.root,
		"ttl", ttl.String(),
		"interval", interval.String(),
	)

	// Run immediately on startup
	d.sweepOnce(ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("upload sweeper stopped")
			return
		case <-ticker.C:
			d.sweepOnce(ttl)
		}
	}
}

// sweepOnce performs one expiry pass.
func (d *Dir) sweepOnce(ttl time.Duration) {
	start := time.Now()
	removed, err := d.Sweep(ttl)
	if err != nil {
		slog.Error("upload sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("removed expired uploads",
			"count", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
