// Package worker holds the periodic jobs that drive the orchestrator without a caller:
// the refill timer and the sweep that retries parked allocations.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

type (
	RefillTicker interface {
		TickRefills(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	}

	ParkedRetrier interface {
		RetryParked(ctx context.Context) (int, error)
	}
)

// RefillWorker fires due auto-refills every interval.
type RefillWorker struct {
	svc      RefillTicker
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRefillWorker(svc RefillTicker, interval time.Duration, log *logger.Logger, m *metrics.Metrics) *RefillWorker {
	return &RefillWorker{
		svc:      svc,
		interval: interval,
		logger:   log,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *RefillWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting refill worker", "interval", w.interval.String())
	// catch up on anything that came due while we were down
	w.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down refill worker")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one scheduler pass and returns the created pharmacy order ids.
func (w *RefillWorker) Tick(ctx context.Context) []uuid.UUID {
	created, err := w.svc.TickRefills(ctx, w.now())
	if err != nil {
		w.metrics.RefillTickErrors.Inc()
		w.logger.Error(err, "Refill tick finished with errors", "created", len(created))
		return created
	}
	if len(created) > 0 {
		w.logger.Info("Refill tick created orders", "created", len(created))
	}
	return created
}

// ParkedSweepWorker re-runs allocation for work that is waiting for a partner.
type ParkedSweepWorker struct {
	svc      ParkedRetrier
	interval time.Duration
	logger   *logger.Logger
}

func NewParkedSweepWorker(svc ParkedRetrier, interval time.Duration, log *logger.Logger) *ParkedSweepWorker {
	return &ParkedSweepWorker{svc: svc, interval: interval, logger: log}
}

func (w *ParkedSweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

func (w *ParkedSweepWorker) Sweep(ctx context.Context) int {
	placed, err := w.svc.RetryParked(ctx)
	if err != nil {
		w.logger.Error(err, "Parked work sweep failed", "placed", placed)
		return placed
	}
	if placed > 0 {
		w.logger.Info("Parked work placed", "placed", placed)
	}
	return placed
}
