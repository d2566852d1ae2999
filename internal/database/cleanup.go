package database

import (
	"context"
	"log/slog"
	"time"
)

// StartCleanupTicker runs a background goroutine that periodically prunes
// conference records whose start time has fallen outside the retention
// period. A zero or negative retention disables pruning. The goroutine
// stops when the provided context is cancelled.
func StartCleanupTicker(ctx context.Context, records ConferenceRecordRepository, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := records.DeleteOlderThan(ctx, time.Now().Add(-retention))
				if err != nil {
					slog.Error("record retention cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("record retention cleanup", "deleted", n, "retention", retention.String())
				}
			}
		}
	}()
}
