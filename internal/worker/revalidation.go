package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/vaccination-api/internal/service/validation"
	"github.com/jwalitptl/vaccination-api/pkg/logger"
)

// RevalidationWorker runs the revalidation job on a fixed interval.
type RevalidationWorker struct {
	service  validation.ValidationServicer
	interval time.Duration
	logger   *logger.Logger
}

func NewRevalidationWorker(service validation.ValidationServicer, interval time.Duration, log *logger.Logger) *RevalidationWorker {
	return &RevalidationWorker{
		service:  service,
		interval: interval,
		logger:   log.With("component", "revalidation_worker"),
	}
}

// Start runs once immediately and then on every tick until ctx is done.
func (w *RevalidationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting revalidation worker", "interval", w.interval.String())
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down revalidation worker")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RevalidationWorker) runOnce(ctx context.Context) {
	if _, err := w.service.Revalidate(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error(err, "Revalidation run failed")
	}
}
