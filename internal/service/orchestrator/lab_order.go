package orchestrator

import (
	"context"
	"time"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/cutoff"
	"github.com/jwalitptl/fulfillment-api/internal/service/transition"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

func (s *Service) executeLabOrder(ctx context.Context, tx repository.Store, cmd Command, now time.Time) (*outcome, error) {
	o, err := tx.LabOrders().Get(ctx, cmd.EntityID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(cmd, o.Version, "lab order"); err != nil {
		return nil, err
	}

	ev := model.LabOrderEvent(cmd.Event)
	var consultation *model.Consultation
	if cmd.Actor.Role == model.RoleDoctor {
		if consultation, err = tx.Consultations().Get(ctx, o.ConsultationID); err != nil {
			return nil, err
		}
	}
	if err := authorizeLabOrder(cmd.Actor, o, consultation); err != nil {
		return nil, err
	}

	work := o.Clone()
	switch ev {
	case model.LabOrderBookSlot, model.LabOrderReschedule:
		if err := s.applyBooking(work, cmd.Payload, now); err != nil {
			return nil, err
		}
	case model.LabOrderUploadResults:
		if url := optional(cmd.Payload.ResultFileURL); url != nil {
			work.ResultFileURL = url
		}
		work.CriticalValues = cmd.Payload.CriticalValues
	}

	to, err := transition.ValidateLabOrder(o.Status, ev, transition.LabContextFor(work))
	if err != nil {
		return nil, err
	}
	if _, sensitive := cutoff.ForLabEvent(ev); sensitive {
		// the rule looks at the booking the patient currently holds
		if err := cutoff.CheckLabChange(o, now); err != nil {
			return nil, err
		}
	}

	previous := copyID(o.PhlebotomistID)
	switch ev {
	case model.LabOrderBookSlot, model.LabOrderReschedule:
		work.SlotBookedAt = &now
		work.PhlebotomistID = nil
		work.PhlebotomistAssignedAt = nil

	case model.LabOrderAssignPhlebotomist, model.LabOrderReassignPhlebotomist:
		req := allocationRequest{
			kind:     model.PartnerPhlebotomist,
			area:     work.Location(),
			day:      collectionDay(work, now),
			override: cmd.Payload.PartnerID,
		}
		if ev == model.LabOrderReassignPhlebotomist {
			req.exclude = append(req.exclude, *o.PhlebotomistID)
		}
		partner, err := s.allocate(ctx, tx, req, now)
		if apperrors.HasCode(err, apperrors.ErrNoEligiblePartner) {
			return s.parkLabOrder(ctx, tx, cmd, o, req.kind, now)
		}
		if err != nil {
			return nil, err
		}
		work.PhlebotomistID = &partner.ID
		work.PhlebotomistAssignedAt = &now

	case model.LabOrderCollectSample:
		work.SampleCollectedAt = &now

	case model.LabOrderFailCollection:
		work.FailureReason = optional(cmd.Payload.Reason)

	case model.LabOrderDispatchSample:
		req := allocationRequest{
			kind:     model.PartnerLab,
			area:     work.Location(),
			day:      model.DateOf(now),
			override: cmd.Payload.PartnerID,
		}
		partner, err := s.allocate(ctx, tx, req, now)
		if apperrors.HasCode(err, apperrors.ErrNoEligiblePartner) {
			return s.parkLabOrder(ctx, tx, cmd, o, req.kind, now)
		}
		if err != nil {
			return nil, err
		}
		work.LabID = &partner.ID
		work.LabAssignedAt = &now

	case model.LabOrderUploadResults:
		work.ResultsUploadedAt = &now

	case model.LabOrderReviewResults:
		work.DoctorReviewedAt = &now

	case model.LabOrderClose:
		work.ClosedAt = &now

	case model.LabOrderCancel:
		work.CancelledAt = &now
		work.CancelReason = optional(cmd.Payload.Reason)
	}

	work.Status = to
	work.Unpark()
	work.UpdatedAt = now
	if err := tx.LabOrders().Update(ctx, work); err != nil {
		return nil, err
	}

	evt := s.changed(model.EventLabOrderStatusChanged, model.EntityLabOrder, work.ID, cmd, string(o.Status), string(to), now)
	describeLabOrder(evt, work)
	if !sameID(previous, work.PhlebotomistID) {
		evt.PreviousAssigneeID = previous
	}
	return finish(cmd, evt, work.Version, work, cmd.Payload.Reason), nil
}

// parkLabOrder keeps the order where it is, flags it for the unassigned queue and reports
// the assignment as pending.
func (s *Service) parkLabOrder(ctx context.Context, tx repository.Store, cmd Command, o *model.LabOrder, kind model.PartnerKind, now time.Time) (*outcome, error) {
	reason := parkReason(kind)
	parked := o.Clone()
	parked.Park(reason, now)
	parked.UpdatedAt = now
	if err := tx.LabOrders().Update(ctx, parked); err != nil {
		return nil, err
	}

	evt := s.changed(model.EventLabOrderAssignmentPending, model.EntityLabOrder, parked.ID, cmd, string(o.Status), string(o.Status), now)
	describeLabOrder(evt, parked)
	evt.Data["parked_reason"] = reason
	evt.Data["partner_kind"] = string(kind)
	return finish(cmd, evt, parked.Version, parked, "assignment pending: "+reason), nil
}

func describeLabOrder(evt *model.DomainEvent, o *model.LabOrder) {
	evt.PatientID = &o.PatientID
	evt.ConsultationID = &o.ConsultationID
	evt.AssigneeID = copyID(o.PhlebotomistID)
	data := model.JSONMap{
		"panel_name": o.PanelName,
		"pincode":    o.Pincode,
	}
	if o.BookedDate != nil {
		data["booked_date"] = model.FormatDate(*o.BookedDate)
	}
	if o.BookedTimeSlot != nil {
		data["booked_time_slot"] = *o.BookedTimeSlot
	}
	if o.LabID != nil {
		data["lab_id"] = o.LabID.String()
	}
	if o.CriticalValues {
		data["critical_values"] = true
	}
	evt.Data = data
}

// applyBooking copies the requested slot onto the order. Missing fields are left for the
// transition guard to reject.
func (s *Service) applyBooking(o *model.LabOrder, p Payload, now time.Time) error {
	if p.BookedDate == "" || p.TimeSlot == "" {
		return nil
	}
	date, err := model.ParseDate(p.BookedDate)
	if err != nil {
		return apperrors.NewBadRequest("booked_date must be YYYY-MM-DD", err)
	}
	at, err := model.SlotInstant(date, p.TimeSlot, s.cfg.SlotLocation)
	if err != nil {
		return apperrors.NewBadRequest("time_slot must look like 7:00-8:00", err)
	}
	if !at.After(now) {
		return apperrors.NewBadRequest("the selected slot has already started", nil)
	}
	slot := p.TimeSlot
	o.BookedDate = &date
	o.BookedTimeSlot = &slot
	o.BookedAt = &at
	return nil
}

func collectionDay(o *model.LabOrder, now time.Time) time.Time {
	if o.BookedDate != nil {
		return model.DateOf(*o.BookedDate)
	}
	return model.DateOf(now)
}
