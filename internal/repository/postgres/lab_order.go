package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
)

type labOrderRepository struct {
	ext sqlx.ExtContext
}

func (r *labOrderRepository) Create(ctx context.Context, o *model.LabOrder) error {
	prepareBase(&o.Base, &o.Version)
	query := `
		INSERT INTO lab_orders (
			id, version, consultation_id, patient_id, panel_name, test_panel, status,
			booked_date, booked_time_slot, booked_at,
			collection_address, pincode, city, area,
			phlebotomist_id, phlebotomist_assigned_at, lab_id, lab_assigned_at,
			result_file_url, critical_values,
			ordered_at, slot_booked_at, sample_collected_at, results_uploaded_at,
			doctor_reviewed_at, closed_at, cancelled_at,
			failure_reason, cancel_reason, parked_at, parked_reason, created_at, updated_at
		) VALUES (
			:id, :version, :consultation_id, :patient_id, :panel_name, :test_panel, :status,
			:booked_date, :booked_time_slot, :booked_at,
			:collection_address, :pincode, :city, :area,
			:phlebotomist_id, :phlebotomist_assigned_at, :lab_id, :lab_assigned_at,
			:result_file_url, :critical_values,
			:ordered_at, :slot_booked_at, :sample_collected_at, :results_uploaded_at,
			:doctor_reviewed_at, :closed_at, :cancelled_at,
			:failure_reason, :cancel_reason, :parked_at, :parked_reason, :created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, o); err != nil {
		return fmt.Errorf("failed to create lab order: %w", err)
	}
	return nil
}

func (r *labOrderRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	var o model.LabOrder
	if err := sqlx.GetContext(ctx, r.ext, &o, `SELECT * FROM lab_orders WHERE id = $1`, id); err != nil {
		return nil, getError("lab order", err)
	}
	return &o, nil
}

func (r *labOrderRepository) Update(ctx context.Context, o *model.LabOrder) error {
	query := `
		UPDATE lab_orders SET
			version = version + 1,
			status = :status,
			booked_date = :booked_date,
			booked_time_slot = :booked_time_slot,
			booked_at = :booked_at,
			phlebotomist_id = :phlebotomist_id,
			phlebotomist_assigned_at = :phlebotomist_assigned_at,
			lab_id = :lab_id,
			lab_assigned_at = :lab_assigned_at,
			result_file_url = :result_file_url,
			critical_values = :critical_values,
			slot_booked_at = :slot_booked_at,
			sample_collected_at = :sample_collected_at,
			results_uploaded_at = :results_uploaded_at,
			doctor_reviewed_at = :doctor_reviewed_at,
			closed_at = :closed_at,
			cancelled_at = :cancelled_at,
			failure_reason = :failure_reason,
			cancel_reason = :cancel_reason,
			parked_at = :parked_at,
			parked_reason = :parked_reason,
			updated_at = :updated_at
		WHERE id = :id AND version = :version
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext, query, o)
	if err != nil {
		return fmt.Errorf("failed to update lab order: %w", err)
	}
	if err := checkUpdated(ctx, r.ext, "lab_orders", "lab order", o.ID, res); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *labOrderRepository) List(ctx context.Context, filter model.LabOrderFilter) ([]*model.LabOrder, error) {
	query := `SELECT * FROM lab_orders WHERE 1=1`
	var args []interface{}

	if filter.ConsultationID != nil {
		args = append(args, *filter.ConsultationID)
		query += fmt.Sprintf(" AND consultation_id = $%d", len(args))
	}
	if filter.PhlebotomistID != nil {
		args = append(args, *filter.PhlebotomistID)
		query += fmt.Sprintf(" AND phlebotomist_id = $%d", len(args))
	}
	if filter.LabID != nil {
		args = append(args, *filter.LabID)
		query += fmt.Sprintf(" AND lab_id = $%d", len(args))
	}
	if filter.BookedDate != nil {
		args = append(args, model.FormatDate(*filter.BookedDate))
		query += fmt.Sprintf(" AND booked_date = $%d::date", len(args))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if filter.Unassigned {
		query += " AND phlebotomist_id IS NULL"
	}
	if filter.NoLab {
		query += " AND lab_id IS NULL"
	}
	if filter.Parked {
		query += " AND parked_at IS NOT NULL"
	}
	query += " ORDER BY created_at, id"

	var orders []*model.LabOrder
	if err := sqlx.SelectContext(ctx, r.ext, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list lab orders: %w", err)
	}
	return orders, nil
}

func (r *labOrderRepository) CountByPhlebotomist(ctx context.Context, ids []uuid.UUID, bookedDate time.Time) (map[uuid.UUID]int, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]int{}, nil
	}
	query := `
		SELECT phlebotomist_id AS partner_id, COUNT(*) AS n
		FROM lab_orders
		WHERE phlebotomist_id IN (?)
		AND booked_date = CAST(? AS date)
		AND status NOT IN (?)
		GROUP BY phlebotomist_id
	`
	return countLoads(ctx, r.ext, query, ids, model.FormatDate(bookedDate), statusStrings(repository.LoadExcludedLabStatuses))
}

func (r *labOrderRepository) CountByLab(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]int, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]int{}, nil
	}
	start := model.DateOf(day)
	query := `
		SELECT lab_id AS partner_id, COUNT(*) AS n
		FROM lab_orders
		WHERE lab_id IN (?)
		AND lab_assigned_at >= ? AND lab_assigned_at < ?
		AND status NOT IN (?)
		GROUP BY lab_id
	`
	return countLoads(ctx, r.ext, query, ids, start, start.AddDate(0, 0, 1), statusStrings(repository.LoadExcludedLabStatuses))
}
