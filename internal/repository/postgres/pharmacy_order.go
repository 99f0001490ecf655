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

type pharmacyOrderRepository struct {
	ext sqlx.ExtContext
}

func (r *pharmacyOrderRepository) Create(ctx context.Context, o *model.PharmacyOrder) error {
	prepareBase(&o.Base, &o.Version)
	query := `
		INSERT INTO pharmacy_orders (
			id, version, prescription_id, patient_id, pharmacy_id, refill_config_id, status,
			delivery_address, pincode, city, medications,
			delivery_person_name, delivery_person_phone,
			assigned_at, accepted_at, preparing_at, ready_for_pickup_at, dispatched_at, delivered_at,
			issue_reason, issue_photo_url, cancel_reason, parked_at, parked_reason,
			created_at, updated_at
		) VALUES (
			:id, :version, :prescription_id, :patient_id, :pharmacy_id, :refill_config_id, :status,
			:delivery_address, :pincode, :city, :medications,
			:delivery_person_name, :delivery_person_phone,
			:assigned_at, :accepted_at, :preparing_at, :ready_for_pickup_at, :dispatched_at, :delivered_at,
			:issue_reason, :issue_photo_url, :cancel_reason, :parked_at, :parked_reason,
			:created_at, :updated_at
		)
	`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, o); err != nil {
		return fmt.Errorf("failed to create pharmacy order: %w", err)
	}
	return nil
}

func (r *pharmacyOrderRepository) Get(ctx context.Context, id uuid.UUID) (*model.PharmacyOrder, error) {
	var o model.PharmacyOrder
	if err := sqlx.GetContext(ctx, r.ext, &o, `SELECT * FROM pharmacy_orders WHERE id = $1`, id); err != nil {
		return nil, getError("pharmacy order", err)
	}
	return &o, nil
}

func (r *pharmacyOrderRepository) Update(ctx context.Context, o *model.PharmacyOrder) error {
	query := `
		UPDATE pharmacy_orders SET
			version = version + 1,
			pharmacy_id = :pharmacy_id,
			status = :status,
			delivery_person_name = :delivery_person_name,
			delivery_person_phone = :delivery_person_phone,
			assigned_at = :assigned_at,
			accepted_at = :accepted_at,
			preparing_at = :preparing_at,
			ready_for_pickup_at = :ready_for_pickup_at,
			dispatched_at = :dispatched_at,
			delivered_at = :delivered_at,
			issue_reason = :issue_reason,
			issue_photo_url = :issue_photo_url,
			cancel_reason = :cancel_reason,
			parked_at = :parked_at,
			parked_reason = :parked_reason,
			updated_at = :updated_at
		WHERE id = :id AND version = :version
	`
	res, err := sqlx.NamedExecContext(ctx, r.ext, query, o)
	if err != nil {
		return fmt.Errorf("failed to update pharmacy order: %w", err)
	}
	if err := checkUpdated(ctx, r.ext, "pharmacy_orders", "pharmacy order", o.ID, res); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *pharmacyOrderRepository) List(ctx context.Context, filter model.PharmacyOrderFilter) ([]*model.PharmacyOrder, error) {
	query := `SELECT * FROM pharmacy_orders WHERE 1=1`
	var args []interface{}

	if filter.PharmacyID != nil {
		args = append(args, *filter.PharmacyID)
		query += fmt.Sprintf(" AND pharmacy_id = $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if filter.AssignedOn != nil {
		start := model.DateOf(*filter.AssignedOn)
		args = append(args, start, start.AddDate(0, 0, 1))
		query += fmt.Sprintf(" AND assigned_at >= $%d AND assigned_at < $%d", len(args)-1, len(args))
	}
	if filter.Parked {
		query += " AND parked_at IS NOT NULL"
	}
	query += " ORDER BY created_at, id"

	var orders []*model.PharmacyOrder
	if err := sqlx.SelectContext(ctx, r.ext, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pharmacy orders: %w", err)
	}
	return orders, nil
}

func (r *pharmacyOrderRepository) CountByPharmacy(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]int, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]int{}, nil
	}
	start := model.DateOf(day)
	query := `
		SELECT pharmacy_id AS partner_id, COUNT(*) AS n
		FROM pharmacy_orders
		WHERE pharmacy_id IN (?)
		AND assigned_at >= ? AND assigned_at < ?
		AND status NOT IN (?)
		GROUP BY pharmacy_id
	`
	return countLoads(ctx, r.ext, query, ids, start, start.AddDate(0, 0, 1), statusStrings(repository.LoadExcludedPharmacyStatuses))
}
