package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type refillRepository struct {
	ext sqlx.ExtContext
}

func (r *refillRepository) Create(ctx context.Context, c *model.AutoRefillConfig) error {
	prepareBase(&c.Base, &c.Version)
	query := `
		INSERT INTO refill_configs (
			id, version, prescription_id, patient_id, interval_days, next_refill_date, is_active,
			last_fired_for, delivery_address, pincode, city, medications, cancelled_at,
			created_at, updated_at
		) VALUES (
			:id, :version, :prescription_id, :patient_id, :interval_days, :next_refill_date, :is_active,
			:last_fired_for, :delivery_address, :pincode, :city, :medications, :cancelled_at,
			:created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, c); err != nil {
		return fmt.Errorf("failed to create refill config: %w", err)
	}
	return nil
}

func (r *refillRepository) Get(ctx context.Context, id uuid.UUID) (*model.AutoRefillConfig, error) {
	var c model.AutoRefillConfig
	if err := sqlx.GetContext(ctx, r.ext, &c, `SELECT * FROM refill_configs WHERE id = $1`, id); err != nil {
		return nil, getError("refill config", err)
	}
	return &c, nil
}

func (r *refillRepository) Update(ctx context.Context, c *model.AutoRefillConfig) error {
	query := `
		UPDATE refill_configs SET
			version = version + 1,
			next_refill_date = :next_refill_date,
			is_active = :is_active,
			last_fired_for = :last_fired_for,
			cancelled_at = :cancelled_at,
			updated_at = :updated_at
		WHERE id = :id AND version = :version
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext, query, c)
	if err != nil {
		return fmt.Errorf("failed to update refill config: %w", err)
	}
	if err := checkUpdated(ctx, r.ext, "refill_configs", "refill config", c.ID, res); err != nil {
		return err
	}
	c.Version++
	return nil
}

func (r *refillRepository) ListDue(ctx context.Context, now time.Time) ([]*model.AutoRefillConfig, error) {
	query := `
		SELECT * FROM refill_configs
		WHERE is_active AND next_refill_date <= $1
		ORDER BY next_refill_date, id
	`
	var configs []*model.AutoRefillConfig
	if err := sqlx.SelectContext(ctx, r.ext, &configs, query, now.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list due refills: %w", err)
	}
	return configs, nil
}

func (r *refillRepository) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.AutoRefillConfig, error) {
	query := `SELECT * FROM refill_configs WHERE prescription_id = $1 ORDER BY created_at, id`
	var configs []*model.AutoRefillConfig
	if err := sqlx.SelectContext(ctx, r.ext, &configs, query, prescriptionID); err != nil {
		return nil, fmt.Errorf("failed to list refill configs: %w", err)
	}
	return configs, nil
}
