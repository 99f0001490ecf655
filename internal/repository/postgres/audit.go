package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type auditRepository struct {
	ext sqlx.ExtContext
}

func (r *auditRepository) Create(ctx context.Context, rec *model.TransitionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `
		INSERT INTO transition_records (
			id, entity_type, entity_id, event, from_status, to_status,
			actor_role, actor_id, note, created_at
		) VALUES (
			:id, :entity_type, :entity_id, :event, :from_status, :to_status,
			:actor_role, :actor_id, :note, :created_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, rec); err != nil {
		return fmt.Errorf("failed to create transition record: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType model.EntityType, entityID uuid.UUID) ([]*model.TransitionRecord, error) {
	query := `
		SELECT * FROM transition_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at, id
	`
	var records []*model.TransitionRecord
	if err := sqlx.SelectContext(ctx, r.ext, &records, query, string(entityType), entityID); err != nil {
		return nil, fmt.Errorf("failed to list transition records: %w", err)
	}
	return records, nil
}
