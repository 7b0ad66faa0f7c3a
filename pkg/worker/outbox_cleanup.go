package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/medassist/booking-api/internal/repository"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/logger"
)

// OutboxCleanupWorker deletes relayed events once they are older than the retention.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *logger.Logger
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, clk clock.Clock, log *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		clock:     clk,
		logger:    log,
	}
}

func (w *OutboxCleanupWorker) Interval() time.Duration {
	return w.interval
}

// Cleanup deletes processed events older than the retention.
func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) error {
	cutoff := w.clock.Now().Add(-w.retention)
	n, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up outbox events: %w", err)
	}
	if n > 0 {
		w.logger.Info("Cleaned up outbox events", "deleted", n, "cutoff", cutoff)
	}
	return nil
}
