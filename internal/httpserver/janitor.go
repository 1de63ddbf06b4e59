package httpserver

import (
	"context"
	"log/slog"
	"time"

	"burnbin/internal/clock"
	"burnbin/internal/storage"
)

// StartJanitor launches a background sweep that deletes expired pastes.
// Correctness never depends on it: consume deletes dead records eagerly, the
// janitor only reclaims storage for pastes nobody asks for again.
func StartJanitor(ctx context.Context, store storage.Store, clk *clock.Clock, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepOnce(ctx, store, clk, logger)
			}
		}
	}()
}

func sweepOnce(ctx context.Context, store storage.Store, clk *clock.Clock, logger *slog.Logger) {
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	removed, err := store.DeleteExpired(c, clk.NowMS())
	if err != nil {
		if logger != nil {
			logger.Error("janitor error", "error", err)
		}
		return
	}
	if removed > 0 && logger != nil {
		logger.Info("janitor removed expired pastes", "count", removed)
	}
}
