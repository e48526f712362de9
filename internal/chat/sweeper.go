package chat

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often idle sessions are purged.
const DefaultSweepInterval = 5 * time.Minute

// SessionCleaner deletes sessions idle for longer than ttl.
type SessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// RunSweeper purges idle sessions every interval until ctx is done. It
// returns nil on cancellation so it can run in an errgroup.
func RunSweeper(ctx context.Context, repo SessionCleaner, ttl, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			sweep(ctx, repo, ttl)
		case <-ctx.Done():
			slog.Info("Session sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func sweep(ctx context.Context, repo SessionCleaner, ttl time.Duration) {
	deleted, err := repo.CleanupExpiredSessions(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Session sweeper failed to clean up expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Session sweeper removed expired sessions", "count", deleted)
	}
}
