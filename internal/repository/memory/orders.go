package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type consultationRepo struct{ s *Store }

func (r *consultationRepo) Create(ctx context.Context, c *model.Consultation) error {
	return r.s.write(func(d *data) error {
		prepareBase(&c.Base, &c.Version)
		if _, exists := d.consultations[c.ID]; exists {
			return apperrors.NewBadRequest("consultation already exists", nil)
		}
		d.consultations[c.ID] = c.Clone()
		return nil
	})
}

func (r *consultationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Consultation, error) {
	var out *model.Consultation
	err := r.s.read(func(d *data) error {
		c, ok := d.consultations[id]
		if !ok {
			return apperrors.NewNotFound("consultation", nil)
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

func (r *consultationRepo) Update(ctx context.Context, c *model.Consultation) error {
	return r.s.write(func(d *data) error {
		stored, ok := d.consultations[c.ID]
		storedVersion := 0
		if ok {
			storedVersion = stored.Version
		}
		if err := checkVersion("consultation", ok, storedVersion, c.Version); err != nil {
			return err
		}
		c.Version++
		d.consultations[c.ID] = c.Clone()
		return nil
	})
}

type labOrderRepo struct{ s *Store }

func (r *labOrderRepo) Create(ctx context.Context, o *model.LabOrder) error {
	return r.s.write(func(d *data) error {
		prepareBase(&o.Base, &o.Version)
		if _, exists := d.labOrders[o.ID]; exists {
			return apperrors.NewBadRequest("lab order already exists", nil)
		}
		d.labOrders[o.ID] = o.Clone()
		return nil
	})
}

func (r *labOrderRepo) Get(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	var out *model.LabOrder
	err := r.s.read(func(d *data) error {
		o, ok := d.labOrders[id]
		if !ok {
			return apperrors.NewNotFound("lab order", nil)
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r *labOrderRepo) Update(ctx context.Context, o *model.LabOrder) error {
	return r.s.write(func(d *data) error {
		stored, ok := d.labOrders[o.ID]
		storedVersion := 0
		if ok {
			storedVersion = stored.Version
		}
		if err := checkVersion("lab order", ok, storedVersion, o.Version); err != nil {
			return err
		}
		o.Version++
		d.labOrders[o.ID] = o.Clone()
		return nil
	})
}

func (r *labOrderRepo) List(ctx context.Context, filter model.LabOrderFilter) ([]*model.LabOrder, error) {
	var out []*model.LabOrder
	err := r.s.read(func(d *data) error {
		for _, o := range d.labOrders {
			if matchLabOrder(o, filter) {
				out = append(out, o.Clone())
			}
		}
		return nil
	})
	sortBase(out, func(o *model.LabOrder) model.Base { return o.Base })
	return out, err
}

func matchLabOrder(o *model.LabOrder, f model.LabOrderFilter) bool {
	if f.ConsultationID != nil && o.ConsultationID != *f.ConsultationID {
		return false
	}
	if f.PhlebotomistID != nil && (o.PhlebotomistID == nil || *o.PhlebotomistID != *f.PhlebotomistID) {
		return false
	}
	if f.LabID != nil && (o.LabID == nil || *o.LabID != *f.LabID) {
		return false
	}
	if f.BookedDate != nil && !sameDay(o.BookedDate, *f.BookedDate) {
		return false
	}
	if f.Unassigned && o.PhlebotomistID != nil {
		return false
	}
	if f.NoLab && o.LabID != nil {
		return false
	}
	if f.Parked && o.ParkedAt == nil {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if o.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func labLoadExcluded(st model.LabOrderStatus) bool {
	for _, ex := range repository.LoadExcludedLabStatuses {
		if st == ex {
			return true
		}
	}
	return false
}

func (r *labOrderRepo) CountByPhlebotomist(ctx context.Context, ids []uuid.UUID, bookedDate time.Time) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(ids))
	err := r.s.read(func(d *data) error {
		for _, o := range d.labOrders {
			if labLoadExcluded(o.Status) || !containsID(ids, o.PhlebotomistID) || !sameDay(o.BookedDate, bookedDate) {
				continue
			}
			counts[*o.PhlebotomistID]++
		}
		return nil
	})
	return counts, err
}

func (r *labOrderRepo) CountByLab(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(ids))
	err := r.s.read(func(d *data) error {
		for _, o := range d.labOrders {
			if labLoadExcluded(o.Status) || !containsID(ids, o.LabID) || !sameDay(o.LabAssignedAt, day) {
				continue
			}
			counts[*o.LabID]++
		}
		return nil
	})
	return counts, err
}

type pharmacyOrderRepo struct{ s *Store }

func (r *pharmacyOrderRepo) Create(ctx context.Context, o *model.PharmacyOrder) error {
	return r.s.write(func(d *data) error {
		prepareBase(&o.Base, &o.Version)
		if _, exists := d.pharmacyOrders[o.ID]; exists {
			return apperrors.NewBadRequest("pharmacy order already exists", nil)
		}
		d.pharmacyOrders[o.ID] = o.Clone()
		return nil
	})
}

func (r *pharmacyOrderRepo) Get(ctx context.Context, id uuid.UUID) (*model.PharmacyOrder, error) {
	var out *model.PharmacyOrder
	err := r.s.read(func(d *data) error {
		o, ok := d.pharmacyOrders[id]
		if !ok {
			return apperrors.NewNotFound("pharmacy order", nil)
		}
		out = o.Clone()
		return nil
	})
	return out, err
}

func (r *pharmacyOrderRepo) Update(ctx context.Context, o *model.PharmacyOrder) error {
	return r.s.write(func(d *data) error {
		stored, ok := d.pharmacyOrders[o.ID]
		storedVersion := 0
		if ok {
			storedVersion = stored.Version
		}
		if err := checkVersion("pharmacy order", ok, storedVersion, o.Version); err != nil {
			return err
		}
		o.Version++
		d.pharmacyOrders[o.ID] = o.Clone()
		return nil
	})
}

func (r *pharmacyOrderRepo) List(ctx context.Context, filter model.PharmacyOrderFilter) ([]*model.PharmacyOrder, error) {
	var out []*model.PharmacyOrder
	err := r.s.read(func(d *data) error {
		for _, o := range d.pharmacyOrders {
			if matchPharmacyOrder(o, filter) {
				out = append(out, o.Clone())
			}
		}
		return nil
	})
	sortBase(out, func(o *model.PharmacyOrder) model.Base { return o.Base })
	return out, err
}

func matchPharmacyOrder(o *model.PharmacyOrder, f model.PharmacyOrderFilter) bool {
	if f.PharmacyID != nil && (o.PharmacyID == nil || *o.PharmacyID != *f.PharmacyID) {
		return false
	}
	if f.AssignedOn != nil && !sameDay(o.AssignedAt, *f.AssignedOn) {
		return false
	}
	if f.Parked && o.ParkedAt == nil {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if o.Status == st {
				return true
			}
		}
		return false
	}
	return true
}

func (r *pharmacyOrderRepo) CountByPharmacy(ctx context.Context, ids []uuid.UUID, day time.Time) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(ids))
	err := r.s.read(func(d *data) error {
		for _, o := range d.pharmacyOrders {
			excluded := false
			for _, ex := range repository.LoadExcludedPharmacyStatuses {
				if o.Status == ex {
					excluded = true
				}
			}
			if excluded || !containsID(ids, o.PharmacyID) || !sameDay(o.AssignedAt, day) {
				continue
			}
			counts[*o.PharmacyID]++
		}
		return nil
	})
	return counts, err
}
