package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

type fakeTicker struct {
	at      []time.Time
	created []uuid.UUID
	err     error
}

func (f *fakeTicker) TickRefills(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	f.at = append(f.at, now)
	return f.created, f.err
}

type fakeRetrier struct {
	placed int
	err    error
	calls  int
}

func (f *fakeRetrier) RetryParked(context.Context) (int, error) {
	f.calls++
	return f.placed, f.err
}

func TestRefillTickPassesClock(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	svc := &fakeTicker{created: []uuid.UUID{uuid.New()}}
	w := NewRefillWorker(svc, time.Hour, logger.Nop(), metrics.NewNop())
	w.now = func() time.Time { return now }

	assert.Len(t, w.Tick(context.Background()), 1)
	assert.Equal(t, []time.Time{now}, svc.at)
}

func TestRefillTickCountsErrors(t *testing.T) {
	m := metrics.NewNop()
	w := NewRefillWorker(&fakeTicker{err: errors.New("db down")}, time.Hour, logger.Nop(), m)

	w.Tick(context.Background())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RefillTickErrors))
}

func TestRefillWorkerStopsOnCancel(t *testing.T) {
	svc := &fakeTicker{}
	w := NewRefillWorker(svc, time.Hour, logger.Nop(), metrics.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Len(t, svc.at, 1)
}

func TestSweepReportsPlaced(t *testing.T) {
	svc := &fakeRetrier{placed: 2}
	w := NewParkedSweepWorker(svc, time.Minute, logger.Nop())

	assert.Equal(t, 2, w.Sweep(context.Background()))
	assert.Equal(t, 1, svc.calls)
}
