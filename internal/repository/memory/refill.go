package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type refillRepo struct{ s *Store }

func (r *refillRepo) Create(ctx context.Context, c *model.AutoRefillConfig) error {
	return r.s.write(func(d *data) error {
		prepareBase(&c.Base, &c.Version)
		if _, exists := d.refills[c.ID]; exists {
			return apperrors.NewBadRequest("refill config already exists", nil)
		}
		d.refills[c.ID] = c.Clone()
		return nil
	})
}

func (r *refillRepo) Get(ctx context.Context, id uuid.UUID) (*model.AutoRefillConfig, error) {
	var out *model.AutoRefillConfig
	err := r.s.read(func(d *data) error {
		c, ok := d.refills[id]
		if !ok {
			return apperrors.NewNotFound("refill config", nil)
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

func (r *refillRepo) Update(ctx context.Context, c *model.AutoRefillConfig) error {
	return r.s.write(func(d *data) error {
		stored, ok := d.refills[c.ID]
		storedVersion := 0
		if ok {
			storedVersion = stored.Version
		}
		if err := checkVersion("refill config", ok, storedVersion, c.Version); err != nil {
			return err
		}
		c.Version++
		d.refills[c.ID] = c.Clone()
		return nil
	})
}

func (r *refillRepo) ListDue(ctx context.Context, now time.Time) ([]*model.AutoRefillConfig, error) {
	var out []*model.AutoRefillConfig
	err := r.s.read(func(d *data) error {
		for _, c := range d.refills {
			if c.IsActive && !now.Before(c.NextRefillDate) {
				out = append(out, c.Clone())
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].NextRefillDate.Equal(out[j].NextRefillDate) {
			return out[i].NextRefillDate.Before(out[j].NextRefillDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (r *refillRepo) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*model.AutoRefillConfig, error) {
	var out []*model.AutoRefillConfig
	err := r.s.read(func(d *data) error {
		for _, c := range d.refills {
			if c.PrescriptionID == prescriptionID {
				out = append(out, c.Clone())
			}
		}
		return nil
	})
	sortBase(out, func(c *model.AutoRefillConfig) model.Base { return c.Base })
	return out, err
}
