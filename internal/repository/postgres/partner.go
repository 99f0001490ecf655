package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type partnerRepository struct {
	ext sqlx.ExtContext
}

func (r *partnerRepository) Create(ctx context.Context, p *model.Partner) error {
	prepareBase(&p.Base, &p.Version)
	query := `
		INSERT INTO partners (
			id, version, kind, name, phone, email, status,
			serviceable_pincodes, serviceable_cities, daily_limit,
			credential_expiry, last_assigned_at, created_at, updated_at
		) VALUES (
			:id, :version, :kind, :name, :phone, :email, :status,
			:serviceable_pincodes, :serviceable_cities, :daily_limit,
			:credential_expiry, :last_assigned_at, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, p); err != nil {
		return fmt.Errorf("failed to create partner: %w", err)
	}
	return nil
}

func (r *partnerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	var p model.Partner
	if err := sqlx.GetContext(ctx, r.ext, &p, `SELECT * FROM partners WHERE id = $1`, id); err != nil {
		return nil, getError("partner", err)
	}
	return &p, nil
}

func (r *partnerRepository) Update(ctx context.Context, p *model.Partner) error {
	query := `
		UPDATE partners SET
			version = version + 1,
			name = :name,
			phone = :phone,
			email = :email,
			status = :status,
			serviceable_pincodes = :serviceable_pincodes,
			serviceable_cities = :serviceable_cities,
			daily_limit = :daily_limit,
			credential_expiry = :credential_expiry,
			updated_at = :updated_at
		WHERE id = :id AND version = :version
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext, query, p)
	if err != nil {
		return fmt.Errorf("failed to update partner: %w", err)
	}
	if err := checkUpdated(ctx, r.ext, "partners", "partner", p.ID, res); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r *partnerRepository) ListByKind(ctx context.Context, kind model.PartnerKind) ([]*model.Partner, error) {
	var partners []*model.Partner
	query := `SELECT * FROM partners WHERE kind = $1 ORDER BY name, id`
	if err := sqlx.SelectContext(ctx, r.ext, &partners, query, string(kind)); err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	return partners, nil
}

func (r *partnerRepository) TouchAssignment(ctx context.Context, id uuid.UUID, prev *time.Time, at time.Time) error {
	query := `
		UPDATE partners SET last_assigned_at = $3
		WHERE id = $1 AND last_assigned_at IS NOT DISTINCT FROM $2
	`
	res, err := r.ext.ExecContext(ctx, query, id, prev, at)
	if err != nil {
		return fmt.Errorf("failed to touch partner: %w", err)
	}
	return checkUpdated(ctx, r.ext, "partners", "partner", id, res)
}

type patientRepository struct {
	ext sqlx.ExtContext
}

func (r *patientRepository) Create(ctx context.Context, p *model.PatientSummary) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO patients (id, name, phone, email)
		VALUES (:id, :name, :phone, :email)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, p); err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.PatientSummary, error) {
	out := make(map[uuid.UUID]*model.PatientSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT id, name, phone, email FROM patients WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build patient query: %w", err)
	}
	var patients []*model.PatientSummary
	if err := sqlx.SelectContext(ctx, r.ext, &patients, r.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get patients: %w", err)
	}
	for _, p := range patients {
		out[p.ID] = p
	}
	return out, nil
}
