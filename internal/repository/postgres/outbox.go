package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type outboxRepository struct {
	ext sqlx.ExtContext
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	query := `
		INSERT INTO outbox_events (
			id, event_type, aggregate_type, aggregate_id, payload, status, retry_count, created_at, updated_at
		) VALUES (
			:id, :event_type, :aggregate_type, :aggregate_id, :payload, :status, :retry_count, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ClaimPending locks candidate rows with SKIP LOCKED so concurrent processors never claim
// the same event.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = $2
			OR (status = $1 AND updated_at < $3)
			OR (status = $4 AND retry_count < $5 AND updated_at < $3)
			ORDER BY created_at
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`
	stale := time.Now().UTC().Add(-staleAfter)

	var events []*model.OutboxEvent
	err := sqlx.SelectContext(ctx, r.ext, &events, query,
		string(model.OutboxStatusProcessing),
		string(model.OutboxStatusPending),
		stale,
		string(model.OutboxStatusFailed),
		repository.MaxOutboxAttempts,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET status = $2, error_message = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, string(model.OutboxStatusProcessed))
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE outbox_events
		SET status = $2, error_message = $3, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, id, string(model.OutboxStatusFailed), errMsg)
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = $1
		AND processed_at < $2
	`
	result, err := r.ext.ExecContext(ctx, query, string(model.OutboxStatusProcessed), before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}

func (r *outboxRepository) exec(ctx context.Context, query string, id uuid.UUID, args ...interface{}) error {
	res, err := r.ext.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	if n == 0 {
		return apperrors.NewNotFound("outbox event", nil)
	}
	return nil
}
