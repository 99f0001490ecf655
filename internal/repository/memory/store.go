// Package memory is an in-process Store used by tests and the single-node dev setup.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type data struct {
	consultations  map[uuid.UUID]*model.Consultation
	labOrders      map[uuid.UUID]*model.LabOrder
	pharmacyOrders map[uuid.UUID]*model.PharmacyOrder
	refills        map[uuid.UUID]*model.AutoRefillConfig
	partners       map[uuid.UUID]*model.Partner
	patients       map[uuid.UUID]*model.PatientSummary
	audit          []*model.TransitionRecord
	outbox         []*model.OutboxEvent
}

func newData() *data {
	return &data{
		consultations:  make(map[uuid.UUID]*model.Consultation),
		labOrders:      make(map[uuid.UUID]*model.LabOrder),
		pharmacyOrders: make(map[uuid.UUID]*model.PharmacyOrder),
		refills:        make(map[uuid.UUID]*model.AutoRefillConfig),
		partners:       make(map[uuid.UUID]*model.Partner),
		patients:       make(map[uuid.UUID]*model.PatientSummary),
	}
}

// clone copies every row so a failed transaction can be dropped wholesale.
func (d *data) clone() *data {
	out := newData()
	for id, c := range d.consultations {
		out.consultations[id] = c.Clone()
	}
	for id, o := range d.labOrders {
		out.labOrders[id] = o.Clone()
	}
	for id, o := range d.pharmacyOrders {
		out.pharmacyOrders[id] = o.Clone()
	}
	for id, c := range d.refills {
		out.refills[id] = c.Clone()
	}
	for id, p := range d.partners {
		out.partners[id] = p.Clone()
	}
	for id, p := range d.patients {
		cp := *p
		out.patients[id] = &cp
	}
	out.audit = make([]*model.TransitionRecord, len(d.audit))
	for i, rec := range d.audit {
		cp := *rec
		out.audit[i] = &cp
	}
	out.outbox = make([]*model.OutboxEvent, len(d.outbox))
	for i, evt := range d.outbox {
		out.outbox[i] = cloneOutbox(evt)
	}
	return out
}

// Store keeps everything in maps guarded by one RWMutex. A transaction holds the write
// lock for its whole duration and works on a copy that replaces the live data on commit.
type Store struct {
	root *Store
	mu   sync.RWMutex
	d    *data
	inTx bool
}

func NewStore() *Store {
	s := &Store{d: newData()}
	s.root = s
	return s
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Consultations() repository.ConsultationRepository   { return &consultationRepo{s} }
func (s *Store) LabOrders() repository.LabOrderRepository           { return &labOrderRepo{s} }
func (s *Store) PharmacyOrders() repository.PharmacyOrderRepository { return &pharmacyOrderRepo{s} }
func (s *Store) Refills() repository.RefillRepository               { return &refillRepo{s} }
func (s *Store) Partners() repository.PartnerRepository             { return &partnerRepo{s} }
func (s *Store) Patients() repository.PatientRepository             { return &patientRepo{s} }
func (s *Store) Audit() repository.AuditRepository                  { return &auditRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository                { return &outboxRepo{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	defer s.root.mu.Unlock()

	tx := &Store{root: s.root, d: s.root.d.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.root.d = tx.d
	return nil
}

func (s *Store) read(fn func(d *data) error) error {
	if s.inTx {
		return fn(s.d)
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return fn(s.root.d)
}

func (s *Store) write(fn func(d *data) error) error {
	if s.inTx {
		return fn(s.d)
	}
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.d)
}

func now() time.Time {
	return time.Now().UTC()
}

// checkVersion returns the error an optimistic update must fail with, if any.
func checkVersion(resource string, exists bool, stored, expected int) error {
	if !exists {
		return apperrors.NewNotFound(resource, nil)
	}
	if stored != expected {
		return apperrors.NewConcurrentModification(resource)
	}
	return nil
}

func prepareBase(b *model.Base, version *int) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	if *version == 0 {
		*version = 1
	}
}

func sameDay(a *time.Time, day time.Time) bool {
	if a == nil {
		return false
	}
	return model.DateOf(*a).Equal(model.DateOf(day))
}

func containsID(ids []uuid.UUID, id *uuid.UUID) bool {
	if id == nil {
		return false
	}
	for _, candidate := range ids {
		if candidate == *id {
			return true
		}
	}
	return false
}

func byCreated(a, b model.Base) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func sortBase[T any](items []T, base func(T) model.Base) {
	sort.SliceStable(items, func(i, j int) bool {
		return byCreated(base(items[i]), base(items[j]))
	})
}
