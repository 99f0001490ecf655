package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/event"
	"github.com/jwalitptl/fulfillment-api/internal/service/refill"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type CreateConsultationInput struct {
	PatientID uuid.UUID      `json:"patient_id"`
	Vertical  model.Vertical `json:"vertical" binding:"required"`
}

type CreateLabOrderInput struct {
	ConsultationID    uuid.UUID `json:"consultation_id" binding:"required"`
	PanelName         string    `json:"panel_name"`
	TestCodes         []string  `json:"test_codes" binding:"required,min=1"`
	CollectionAddress string    `json:"collection_address" binding:"required"`
	Pincode           string    `json:"pincode" binding:"required,pincode"`
	City              string    `json:"city" binding:"required"`
	Area              string    `json:"area"`
}

type CreatePharmacyOrderInput struct {
	PrescriptionID  uuid.UUID         `json:"prescription_id" binding:"required"`
	PatientID       uuid.UUID         `json:"patient_id" binding:"required"`
	DeliveryAddress string            `json:"delivery_address" binding:"required"`
	Pincode         string            `json:"pincode" binding:"required,pincode"`
	City            string            `json:"city" binding:"required"`
	Medications     model.Medications `json:"medications" binding:"required,min=1"`
}

type RegisterPartnerInput struct {
	Kind                model.PartnerKind `json:"kind" binding:"required"`
	Name                string            `json:"name" binding:"required"`
	Phone               string            `json:"phone"`
	Email               string            `json:"email"`
	ServiceablePincodes []string          `json:"serviceable_pincodes"`
	ServiceableCities   []string          `json:"serviceable_cities"`
	DailyLimit          int               `json:"daily_limit"`
	CredentialExpiry    *time.Time        `json:"credential_expiry"`
}

// CreateConsultation opens a consultation in PENDING_ASSESSMENT. Patients open their own.
func (s *Service) CreateConsultation(ctx context.Context, actor model.Actor, in CreateConsultationInput) (*model.Consultation, error) {
	switch actor.Role {
	case model.RolePatient:
		if in.PatientID == uuid.Nil {
			in.PatientID = actor.ID
		}
		if in.PatientID != actor.ID {
			return nil, apperrors.NewForbidden("patients can only open their own consultations")
		}
	case model.RoleAdmin:
		if in.PatientID == uuid.Nil {
			return nil, apperrors.NewBadRequest("patient_id is required", nil)
		}
	default:
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot open consultations", actor.Role))
	}
	if !in.Vertical.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown vertical %q", in.Vertical), nil)
	}

	now := s.now()
	c := &model.Consultation{
		Base:      model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientID: in.PatientID,
		Vertical:  in.Vertical,
		Status:    model.ConsultationPendingAssessment,
	}
	evt := model.NewDomainEvent(model.EventConsultationCreated, model.EntityConsultation, c.ID, actor, now)
	evt.To = string(c.Status)
	evt.PatientID = &c.PatientID
	evt.ConsultationID = &c.ID
	evt.Data = model.JSONMap{"vertical": string(c.Vertical)}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Consultations().Create(ctx, c); err != nil {
			return fmt.Errorf("failed to create consultation: %w", err)
		}
		return event.Journal(ctx, tx, event.Transition(model.EntityConsultation, evt, ""), evt)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateLabOrder places a lab order against a consultation. The patient comes from the
// consultation, never from the request.
func (s *Service) CreateLabOrder(ctx context.Context, actor model.Actor, in CreateLabOrderInput) (*model.LabOrder, error) {
	if actor.Role != model.RoleDoctor && actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot order labs", actor.Role))
	}
	if len(in.TestCodes) == 0 {
		return nil, apperrors.NewBadRequest("at least one test code is required", nil)
	}
	codes := make([]string, 0, len(in.TestCodes))
	names := make([]string, 0, len(in.TestCodes))
	for _, code := range in.TestCodes {
		def, ok := model.LookupTest(code)
		if !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown test code %q", code), nil)
		}
		codes = append(codes, def.Code)
		names = append(names, def.Name)
	}
	panel := strings.TrimSpace(in.PanelName)
	if panel == "" {
		panel = strings.Join(names, ", ")
	}

	now := s.now()
	var order *model.LabOrder
	var evt *model.DomainEvent
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		c, err := tx.Consultations().Get(ctx, in.ConsultationID)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleDoctor && (c.DoctorID == nil || *c.DoctorID != actor.ID) {
			return apperrors.NewForbidden("consultation is reviewed by another doctor")
		}
		if c.Status == model.ConsultationRejected {
			return apperrors.NewPreconditionMissing("cannot order labs for a rejected consultation")
		}

		order = &model.LabOrder{
			Base:              model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			ConsultationID:    c.ID,
			PatientID:         c.PatientID,
			PanelName:         panel,
			TestPanel:         pq.StringArray(codes),
			Status:            model.LabOrderOrdered,
			CollectionAddress: in.CollectionAddress,
			Pincode:           strings.TrimSpace(in.Pincode),
			City:              strings.TrimSpace(in.City),
			Area:              strings.TrimSpace(in.Area),
			OrderedAt:         now,
		}
		if err := tx.LabOrders().Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create lab order: %w", err)
		}

		evt = model.NewDomainEvent(model.EventLabOrderCreated, model.EntityLabOrder, order.ID, actor, now)
		evt.To = string(order.Status)
		describeLabOrder(evt, order)
		return event.Journal(ctx, tx, event.Transition(model.EntityLabOrder, evt, ""), evt)
	})
	if err != nil {
		return nil, err
	}

	s.react(ctx, []*model.DomainEvent{evt}, 0)
	return order, nil
}

// CreatePharmacyOrder records a prescription to be fulfilled.
func (s *Service) CreatePharmacyOrder(ctx context.Context, actor model.Actor, in CreatePharmacyOrderInput) (*model.PharmacyOrder, error) {
	if actor.Role != model.RoleDoctor && actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot create pharmacy orders", actor.Role))
	}
	if in.PrescriptionID == uuid.Nil || in.PatientID == uuid.Nil {
		return nil, apperrors.NewBadRequest("prescription_id and patient_id are required", nil)
	}
	if len(in.Medications) == 0 {
		return nil, apperrors.NewBadRequest("at least one medication is required", nil)
	}

	now := s.now()
	order := &model.PharmacyOrder{
		Base:            model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PrescriptionID:  in.PrescriptionID,
		PatientID:       in.PatientID,
		Status:          model.PharmacyPrescriptionCreated,
		DeliveryAddress: in.DeliveryAddress,
		Pincode:         strings.TrimSpace(in.Pincode),
		City:            strings.TrimSpace(in.City),
		Medications:     in.Medications.Clone(),
	}
	evt := model.NewDomainEvent(model.EventPharmacyOrderCreated, model.EntityPharmacyOrder, order.ID, actor, now)
	evt.To = string(order.Status)
	describePharmacyOrder(evt, order)

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.PharmacyOrders().Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create pharmacy order: %w", err)
		}
		return event.Journal(ctx, tx, event.Transition(model.EntityPharmacyOrder, evt, ""), evt)
	})
	if err != nil {
		return nil, err
	}

	s.react(ctx, []*model.DomainEvent{evt}, 0)
	return order, nil
}

func (s *Service) CreateRefillConfig(ctx context.Context, actor model.Actor, in refill.CreateInput) (*model.AutoRefillConfig, error) {
	switch actor.Role {
	case model.RolePatient:
		if in.PatientID == uuid.Nil {
			in.PatientID = actor.ID
		}
		if in.PatientID != actor.ID {
			return nil, apperrors.NewForbidden("patients can only schedule their own refills")
		}
	case model.RoleAdmin:
		if in.PatientID == uuid.Nil {
			return nil, apperrors.NewBadRequest("patient_id is required", nil)
		}
	default:
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot schedule refills", actor.Role))
	}
	return s.refills.Create(ctx, actor, in)
}

func (s *Service) CancelRefillConfig(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.AutoRefillConfig, error) {
	if actor.Role != model.RolePatient && actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot cancel refills", actor.Role))
	}
	return s.refills.Cancel(ctx, actor, id)
}

// RegisterPartner onboards a partner in PENDING_REVIEW. It takes no work until activated.
func (s *Service) RegisterPartner(ctx context.Context, actor model.Actor, in RegisterPartnerInput) (*model.Partner, error) {
	if actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins can register partners")
	}
	switch in.Kind {
	case model.PartnerLab, model.PartnerPhlebotomist, model.PartnerPharmacy:
	default:
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown partner kind %q", in.Kind), nil)
	}
	if len(in.ServiceablePincodes) == 0 && len(in.ServiceableCities) == 0 {
		return nil, apperrors.NewBadRequest("a partner needs at least one serviceable pincode or city", nil)
	}

	now := s.now()
	p := &model.Partner{
		Base:                model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Kind:                in.Kind,
		Name:                strings.TrimSpace(in.Name),
		Phone:               in.Phone,
		Email:               in.Email,
		Status:              model.PartnerPendingReview,
		ServiceablePincodes: pq.StringArray(in.ServiceablePincodes),
		ServiceableCities:   pq.StringArray(in.ServiceableCities),
		DailyLimit:          in.DailyLimit,
		CredentialExpiry:    in.CredentialExpiry,
	}
	evt := model.NewDomainEvent(model.EventPartnerRegistered, model.EntityPartner, p.ID, actor, now)
	evt.To = string(p.Status)
	evt.Data = model.JSONMap{"kind": string(p.Kind), "name": p.Name}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Partners().Create(ctx, p); err != nil {
			return fmt.Errorf("failed to register partner: %w", err)
		}
		return event.Journal(ctx, tx, event.Transition(model.EntityPartner, evt, ""), evt)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetPartnerStatus moves a partner between lifecycle states. Suspending a partner keeps
// its assignments unless the suspension reaction is switched on.
func (s *Service) SetPartnerStatus(ctx context.Context, actor model.Actor, id uuid.UUID, status model.PartnerStatus, expectedVersion *int) (*model.Partner, error) {
	if actor.Role != model.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins can change partner status")
	}
	if !status.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown partner status %q", status), nil)
	}

	now := s.now()
	var out *model.Partner
	var evt *model.DomainEvent
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		p, err := tx.Partners().Get(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != p.Version {
			return apperrors.NewConcurrentModification("partner")
		}
		if p.Status == status {
			return apperrors.NewInvalidTransition("partner", string(p.Status), string(status))
		}

		from := p.Status
		p.Status = status
		p.UpdatedAt = now
		if err := tx.Partners().Update(ctx, p); err != nil {
			return err
		}

		evt = model.NewDomainEvent(model.EventPartnerStatusChanged, model.EntityPartner, p.ID, actor, now)
		evt.From = string(from)
		evt.To = string(status)
		evt.Data = model.JSONMap{"kind": string(p.Kind), "name": p.Name}
		out = p
		return event.Journal(ctx, tx, event.Transition(model.EntityPartner, evt, ""), evt)
	})
	if err != nil {
		return nil, err
	}

	s.react(ctx, []*model.DomainEvent{evt}, 0)
	return out, nil
}

// TickRefills fires due refill configs and routes the orders they create.
func (s *Service) TickRefills(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	created, err := s.refills.Tick(ctx, now)
	if len(created) > 0 {
		evts := make([]*model.DomainEvent, 0, len(created))
		for _, id := range created {
			evts = append(evts, model.NewDomainEvent(model.EventPharmacyOrderCreated, model.EntityPharmacyOrder, id, model.SystemActor(), now))
		}
		s.react(ctx, evts, 0)
	}
	return created, err
}

type parkedWork struct {
	entity model.EntityType
	id     uuid.UUID
	event  string
}

// RetryParked re-runs allocation for every parked item and returns how many found a partner.
func (s *Service) RetryParked(ctx context.Context) (int, error) {
	work, err := s.parkedWork(ctx)
	if err != nil {
		return 0, err
	}

	placed := 0
	for _, w := range work {
		res, err := s.execute(ctx, Command{
			Entity:   w.entity,
			EntityID: w.id,
			Event:    w.event,
			Actor:    model.SystemActor(),
		}, 0)
		if err != nil {
			if ctx.Err() != nil {
				return placed, ctx.Err()
			}
			continue
		}
		if !res.AssignmentPending {
			placed++
		}
	}
	return placed, nil
}

func (s *Service) parkedWork(ctx context.Context) ([]parkedWork, error) {
	labs, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{
		Parked:   true,
		Statuses: []model.LabOrderStatus{
			model.LabOrderSlotBooked,
			model.LabOrderPhlebotomistAssigned,
			model.LabOrderPhlebotomistEnRoute,
			model.LabOrderSampleCollected,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list parked lab orders: %w", err)
	}
	pharmacy, err := s.store.PharmacyOrders().List(ctx, model.PharmacyOrderFilter{
		Parked:   true,
		Statuses: []model.PharmacyOrderStatus{
			model.PharmacyPrescriptionCreated,
			model.PharmacySentToPharmacy,
			model.PharmacyIssue,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list parked pharmacy orders: %w", err)
	}

	var out []parkedWork
	for _, o := range labs {
		if o.ParkedAt == nil {
			continue
		}
		ev := model.LabOrderAssignPhlebotomist
		switch o.Status {
		case model.LabOrderPhlebotomistAssigned, model.LabOrderPhlebotomistEnRoute:
			ev = model.LabOrderReassignPhlebotomist
		case model.LabOrderSampleCollected:
			ev = model.LabOrderDispatchSample
		}
		out = append(out, parkedWork{model.EntityLabOrder, o.ID, string(ev)})
	}
	for _, o := range pharmacy {
		if o.ParkedAt == nil {
			continue
		}
		ev := model.PharmacySendToPharmacy
		if o.Status != model.PharmacyPrescriptionCreated {
			ev = model.PharmacyReassignPharmacy
		}
		out = append(out, parkedWork{model.EntityPharmacyOrder, o.ID, string(ev)})
	}
	return out, nil
}

func (s *Service) GetConsultation(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Consultation, error) {
	c, err := s.store.Consultations().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleDoctor:
	case model.RolePatient:
		if c.PatientID != actor.ID {
			return nil, apperrors.NewForbidden("consultation belongs to another patient")
		}
	default:
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot read consultations", actor.Role))
	}
	return c, nil
}

func (s *Service) GetLabOrder(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.LabOrder, error) {
	o, err := s.store.LabOrders().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleDoctor:
	case model.RolePatient:
		if o.PatientID != actor.ID {
			return nil, apperrors.NewForbidden("lab order belongs to another patient")
		}
	case model.RolePhlebotomist:
		if !actor.ActsFor(o.PhlebotomistID) {
			return nil, apperrors.NewForbidden("lab order is assigned to another phlebotomist")
		}
	case model.RoleLabStaff:
		if !actor.ActsFor(o.LabID) {
			return nil, apperrors.NewForbidden("sample is routed to another lab")
		}
	default:
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot read lab orders", actor.Role))
	}
	return o, nil
}

func (s *Service) GetPharmacyOrder(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PharmacyOrder, error) {
	o, err := s.store.PharmacyOrders().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case model.RoleAdmin, model.RoleDoctor:
	case model.RolePatient:
		if o.PatientID != actor.ID {
			return nil, apperrors.NewForbidden("pharmacy order belongs to another patient")
		}
	case model.RolePharmacyStaff:
		if !actor.ActsFor(o.PharmacyID) {
			return nil, apperrors.NewForbidden("order is assigned to another pharmacy")
		}
	default:
		return nil, apperrors.NewForbidden(fmt.Sprintf("%s cannot read pharmacy orders", actor.Role))
	}
	return o, nil
}
