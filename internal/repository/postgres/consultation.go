package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type consultationRepository struct {
	ext sqlx.ExtContext
}

func (r *consultationRepository) Create(ctx context.Context, c *model.Consultation) error {
	prepareBase(&c.Base, &c.Version)
	query := `
		INSERT INTO consultations (
			id, version, patient_id, vertical, status, doctor_id, lab_results_available,
			claimed_at, info_requested_at, decided_at, rejection_reason, created_at, updated_at
		) VALUES (
			:id, :version, :patient_id, :vertical, :status, :doctor_id, :lab_results_available,
			:claimed_at, :info_requested_at, :decided_at, :rejection_reason, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, c); err != nil {
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

func (r *consultationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	var c model.Consultation
	if err := sqlx.GetContext(ctx, r.ext, &c, `SELECT * FROM consultations WHERE id = $1`, id); err != nil {
		return nil, getError("consultation", err)
	}
	return &c, nil
}

func (r *consultationRepository) Update(ctx context.Context, c *model.Consultation) error {
	query := `
		UPDATE consultations SET
			version = version + 1,
			status = :status,
			doctor_id = :doctor_id,
			lab_results_available = :lab_results_available,
			claimed_at = :claimed_at,
			info_requested_at = :info_requested_at,
			decided_at = :decided_at,
			rejection_reason = :rejection_reason,
			updated_at = :updated_at
		WHERE id = :id AND version = :version
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext, query, c)
	if err != nil {
		return fmt.Errorf("failed to update consultation: %w", err)
	}
	if err := checkUpdated(ctx, r.ext, "consultations", "consultation", c.ID, res); err != nil {
		return err
	}
	c.Version++
	return nil
}
