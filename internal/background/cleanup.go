package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/khayashi/engawa/internal/clock"
)

// StorePurger removes expired entries from an in-process security store.
// The external store expires keys on its own, so the purger is optional.
type StorePurger interface {
	PurgeExpired() int
}

// MatchPruner deletes match rows older than a cutoff.
type MatchPruner interface {
	DeleteMatchesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically purges the in-process store and prunes
// match history past the retention window.
type CleanupManager struct {
	purger    StorePurger
	pruner    MatchPruner
	clk       clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
}

// NewCleanupManager creates a new cleanup manager. purger may be nil when
// the deployment runs on the external store.
func NewCleanupManager(
	purger StorePurger,
	pruner MatchPruner,
	clk clock.Clock,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		purger:    purger,
		pruner:    pruner,
		clk:       clk,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	if cm.purger != nil {
		if purged := cm.purger.PurgeExpired(); purged > 0 {
			cm.logger.Info("purged expired store entries", slog.Int("entries", purged))
		}
	}

	if cm.pruner == nil || cm.retention <= 0 {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.clk.Now().Add(-cm.retention)
	rowsDeleted, err := cm.pruner.DeleteMatchesBefore(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to prune match history", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("match history pruned",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
