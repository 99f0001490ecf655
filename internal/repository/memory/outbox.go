package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

func cloneOutbox(evt *model.OutboxEvent) *model.OutboxEvent {
	out := *evt
	out.Payload = append([]byte(nil), evt.Payload...)
	if evt.ErrorMessage != nil {
		msg := *evt.ErrorMessage
		out.ErrorMessage = &msg
	}
	if evt.ProcessedAt != nil {
		at := *evt.ProcessedAt
		out.ProcessedAt = &at
	}
	return &out
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Create(ctx context.Context, evt *model.OutboxEvent) error {
	if evt == nil || evt.Payload == nil {
		return apperrors.NewBadRequest("outbox event payload cannot be nil", nil)
	}
	return r.s.write(func(d *data) error {
		if evt.ID == uuid.Nil {
			evt.ID = uuid.New()
		}
		if evt.CreatedAt.IsZero() {
			evt.CreatedAt = now()
		}
		evt.UpdatedAt = evt.CreatedAt
		evt.Status = model.OutboxStatusPending
		d.outbox = append(d.outbox, cloneOutbox(evt))
		return nil
	})
}

func (r *outboxRepo) ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	err := r.s.write(func(d *data) error {
		at := now()
		for _, evt := range d.outbox {
			if limit > 0 && len(out) >= limit {
				break
			}
			old := evt.UpdatedAt.Before(at.Add(-staleAfter))
			stale := evt.Status == model.OutboxStatusProcessing && old
			retry := evt.Status == model.OutboxStatusFailed && old && evt.RetryCount < repository.MaxOutboxAttempts
			if evt.Status != model.OutboxStatusPending && !stale && !retry {
				continue
			}
			evt.Status = model.OutboxStatusProcessing
			evt.UpdatedAt = at
			out = append(out, cloneOutbox(evt))
		}
		return nil
	})
	return out, err
}

func (r *outboxRepo) find(d *data, id uuid.UUID) (*model.OutboxEvent, error) {
	for _, evt := range d.outbox {
		if evt.ID == id {
			return evt, nil
		}
	}
	return nil, apperrors.NewNotFound("outbox event", nil)
}

func (r *outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.s.write(func(d *data) error {
		evt, err := r.find(d, id)
		if err != nil {
			return err
		}
		at := now()
		evt.Status = model.OutboxStatusProcessed
		evt.ProcessedAt = &at
		evt.UpdatedAt = at
		evt.ErrorMessage = nil
		return nil
	})
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.s.write(func(d *data) error {
		evt, err := r.find(d, id)
		if err != nil {
			return err
		}
		evt.Status = model.OutboxStatusFailed
		evt.ErrorMessage = &errMsg
		evt.RetryCount++
		evt.UpdatedAt = now()
		return nil
	})
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := r.s.write(func(d *data) error {
		kept := d.outbox[:0]
		for _, evt := range d.outbox {
			if evt.Status == model.OutboxStatusProcessed && evt.ProcessedAt != nil && evt.ProcessedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, evt)
		}
		d.outbox = kept
		return nil
	})
	return deleted, err
}

// Events returns a copy of every outbox row, oldest first.
func (s *Store) Events() []*model.OutboxEvent {
	var out []*model.OutboxEvent
	_ = s.read(func(d *data) error {
		for _, evt := range d.outbox {
			out = append(out, cloneOutbox(evt))
		}
		return nil
	})
	return out
}

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(ctx context.Context, rec *model.TransitionRecord) error {
	return r.s.write(func(d *data) error {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now()
		}
		cp := *rec
		d.audit = append(d.audit, &cp)
		return nil
	})
}

func (r *auditRepo) ListByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) ([]*model.TransitionRecord, error) {
	var out []*model.TransitionRecord
	err := r.s.read(func(d *data) error {
		for _, rec := range d.audit {
			if rec.EntityType == entityType && rec.EntityID == entityID {
				cp := *rec
				out = append(out, &cp)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}
