package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/vaccination-api/internal/repository"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
)

// AuditCleanupWorker purges audit events past retention and delivered outbox
// events.
type AuditCleanupWorker struct {
	repo            repository.AuditRepository
	outbox          repository.OutboxRepository
	logger          *logger.Logger
	retentionDays   int
	cleanupInterval time.Duration
	now             func() time.Time
}

func NewAuditCleanupWorker(repo repository.AuditRepository, outbox repository.OutboxRepository, log *logger.Logger, retentionDays int, cleanupInterval time.Duration) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		repo:            repo,
		outbox:          outbox,
		logger:          log.With("component", "audit_cleanup"),
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil {
				// Log error but continue
				w.logger.Error(err, "Error cleaning up audit events")
			}
		}
	}
}

func (w *AuditCleanupWorker) cleanup(ctx context.Context) error {
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit events: %w", err)
	}

	delivered, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup outbox events: %w", err)
	}

	w.logger.Info("Cleaned up audit trail",
		"audit_events", rows,
		"outbox_events", delivered,
		"cutoff", cutoff.Format(time.RFC3339))
	return nil
}
