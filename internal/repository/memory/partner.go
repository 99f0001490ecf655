package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type partnerRepo struct{ s *Store }

func (r *partnerRepo) Create(ctx context.Context, p *model.Partner) error {
	return r.s.write(func(d *data) error {
		prepareBase(&p.Base, &p.Version)
		if _, exists := d.partners[p.ID]; exists {
			return apperrors.NewBadRequest("partner already exists", nil)
		}
		d.partners[p.ID] = p.Clone()
		return nil
	})
}

func (r *partnerRepo) Get(ctx context.Context, id uuid.UUID) (*model.Partner, error) {
	var out *model.Partner
	err := r.s.read(func(d *data) error {
		p, ok := d.partners[id]
		if !ok {
			return apperrors.NewNotFound("partner", nil)
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

func (r *partnerRepo) Update(ctx context.Context, p *model.Partner) error {
	return r.s.write(func(d *data) error {
		stored, ok := d.partners[p.ID]
		storedVersion := 0
		if ok {
			storedVersion = stored.Version
		}
		if err := checkVersion("partner", ok, storedVersion, p.Version); err != nil {
			return err
		}
		p.Version++
		d.partners[p.ID] = p.Clone()
		return nil
	})
}

func (r *partnerRepo) ListByKind(ctx context.Context, kind model.PartnerKind) ([]*model.Partner, error) {
	var out []*model.Partner
	err := r.s.read(func(d *data) error {
		for _, p := range d.partners {
			if p.Kind == kind {
				out = append(out, p.Clone())
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, err
}

func (r *partnerRepo) TouchAssignment(ctx context.Context, id uuid.UUID, prev *time.Time, at time.Time) error {
	return r.s.write(func(d *data) error {
		p, ok := d.partners[id]
		if !ok {
			return apperrors.NewNotFound("partner", nil)
		}
		if !sameInstant(p.LastAssignedAt, prev) {
			return apperrors.NewConcurrentModification("partner")
		}
		p.LastAssignedAt = &at
		return nil
	})
}

type patientRepo struct{ s *Store }

func (r *patientRepo) Create(ctx context.Context, p *model.PatientSummary) error {
	return r.s.write(func(d *data) error {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		cp := *p
		d.patients[p.ID] = &cp
		return nil
	})
}

func (r *patientRepo) GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.PatientSummary, error) {
	out := make(map[uuid.UUID]*model.PatientSummary, len(ids))
	err := r.s.read(func(d *data) error {
		for _, id := range ids {
			if p, ok := d.patients[id]; ok {
				cp := *p
				out[id] = &cp
			}
		}
		return nil
	})
	return out, err
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
