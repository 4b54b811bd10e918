package job

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campus-nav-api/internal/domain"
	"campus-nav-api/internal/store"
)

// CleanupJob removes presence records that have been idle longer than
// the retention window. Trackers already hide stale entities; this job
// reclaims the storage behind them.
type CleanupJob struct {
	store        store.PresenceStore
	cleanupAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewCleanupJob creates a new CleanupJob instance
func NewCleanupJob(presenceStore store.PresenceStore, cleanupAfter time.Duration, logger *zap.Logger) *CleanupJob {
	return &CleanupJob{
		store:        presenceStore,
		cleanupAfter: cleanupAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes the cleanup job. It scans all presence records and
// deletes those whose last activity is older than the retention window.
func (j *CleanupJob) Run() {
	ctx := context.Background()

	j.logger.Info("Starting cleanup job for idle presence records")

	records, err := j.store.List(ctx)
	if err != nil {
		j.logger.Error("Failed to list presence records",
			zap.Error(err),
		)
		return
	}

	cutoff := j.now().Add(-j.cleanupAfter)
	deleted := 0
	failed := 0

	for _, rec := range records {
		activity, ok := rec.LastActivity()
		if ok && activity.After(cutoff) {
			continue
		}

		// A record still marked online here belongs to a client that never
		// said goodbye; tag the reason before the row disappears so the
		// offline transition reaches watchers.
		if rec.IsLive() {
			err := j.store.Merge(ctx, rec.EntityID, map[string]interface{}{
				"status":           string(domain.PresenceStatusOffline),
				"isOnline":         false,
				"connectionState":  string(domain.ConnectionDisconnected),
				"disconnectReason": domain.DisconnectIdleCleanup,
			})
			if err != nil {
				j.logger.Warn("Failed to tag idle presence record",
					zap.String("entity_id", rec.EntityID),
					zap.Error(err),
				)
			}
		}

		if err := j.store.Delete(ctx, rec.EntityID); err != nil {
			j.logger.Error("Failed to delete idle presence record",
				zap.String("entity_id", rec.EntityID),
				zap.Error(err),
			)
			failed++
			continue
		}
		deleted++

		j.logger.Debug("Deleted idle presence record",
			zap.String("entity_id", rec.EntityID),
		)
	}

	if deleted == 0 && failed == 0 {
		j.logger.Info("No idle presence records found")
		return
	}

	j.logger.Info("Cleanup job completed",
		zap.Int("total", len(records)),
		zap.Int("deleted", deleted),
		zap.Int("failed", failed),
	)
}
