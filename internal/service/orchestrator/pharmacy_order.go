package orchestrator

import (
	"context"
	"time"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/transition"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// deliveryEvents are the events that may bring a delivery person with them.
var deliveryEvents = map[model.PharmacyOrderEvent]bool{
	model.PharmacyArrangePickup:     true,
	model.PharmacyDispatch:          true,
	model.PharmacyRearrangeDelivery: true,
}

func (s *Service) executePharmacyOrder(ctx context.Context, tx repository.Store, cmd Command, now time.Time) (*outcome, error) {
	o, err := tx.PharmacyOrders().Get(ctx, cmd.EntityID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(cmd, o.Version, "pharmacy order"); err != nil {
		return nil, err
	}

	ev := model.PharmacyOrderEvent(cmd.Event)
	if err := authorizePharmacyOrder(cmd.Actor, o, ev); err != nil {
		return nil, err
	}

	work := o.Clone()
	if deliveryEvents[ev] {
		name, phone := optional(cmd.Payload.DeliveryPersonName), optional(cmd.Payload.DeliveryPersonPhone)
		if ev == model.PharmacyRearrangeDelivery {
			// the previous courier failed, a new one must be named
			work.DeliveryPersonName, work.DeliveryPersonPhone = name, phone
		} else if name != nil && phone != nil {
			work.DeliveryPersonName, work.DeliveryPersonPhone = name, phone
		}
	}

	to, err := transition.ValidatePharmacyOrder(o.Status, ev, transition.PharmacyContextFor(work))
	if err != nil {
		return nil, err
	}

	previous := copyID(o.PharmacyID)
	switch ev {
	case model.PharmacySendToPharmacy, model.PharmacyReassignPharmacy:
		req := allocationRequest{
			kind:     model.PartnerPharmacy,
			area:     work.Location(),
			day:      model.DateOf(now),
			override: cmd.Payload.PartnerID,
		}
		if ev == model.PharmacyReassignPharmacy {
			req.exclude = append(req.exclude, *o.PharmacyID)
		}
		partner, err := s.allocate(ctx, tx, req, now)
		if apperrors.HasCode(err, apperrors.ErrNoEligiblePartner) {
			return s.parkPharmacyOrder(ctx, tx, cmd, o, now)
		}
		if err != nil {
			return nil, err
		}
		work.PharmacyID = &partner.ID
		work.AssignedAt = &now
		work.AcceptedAt = nil
		work.PreparingAt = nil
		work.ReadyForPickupAt = nil

	case model.PharmacyAccept:
		work.AcceptedAt = &now
	case model.PharmacyStartPreparing:
		work.PreparingAt = &now
	case model.PharmacyMarkReady:
		work.ReadyForPickupAt = &now
	case model.PharmacyDispatch:
		work.DispatchedAt = &now
	case model.PharmacyDeliver:
		work.DeliveredAt = &now

	case model.PharmacyReportIssue, model.PharmacyFailDelivery:
		work.IssueReason = optional(cmd.Payload.Reason)
		if url := optional(cmd.Payload.PhotoURL); url != nil {
			work.IssuePhotoURL = url
		}

	case model.PharmacyCancel, model.PharmacyReturn:
		work.CancelReason = optional(cmd.Payload.Reason)
	}

	work.Status = to
	work.Unpark()
	work.UpdatedAt = now
	if err := tx.PharmacyOrders().Update(ctx, work); err != nil {
		return nil, err
	}

	evt := s.changed(model.EventPharmacyOrderStatusChanged, model.EntityPharmacyOrder, work.ID, cmd, string(o.Status), string(to), now)
	describePharmacyOrder(evt, work)
	if !sameID(previous, work.PharmacyID) {
		evt.PreviousAssigneeID = previous
	}
	return finish(cmd, evt, work.Version, work, cmd.Payload.Reason), nil
}

func (s *Service) parkPharmacyOrder(ctx context.Context, tx repository.Store, cmd Command, o *model.PharmacyOrder, now time.Time) (*outcome, error) {
	reason := parkReason(model.PartnerPharmacy)
	parked := o.Clone()
	parked.Park(reason, now)
	parked.UpdatedAt = now
	if err := tx.PharmacyOrders().Update(ctx, parked); err != nil {
		return nil, err
	}

	evt := s.changed(model.EventPharmacyOrderAssignmentPending, model.EntityPharmacyOrder, parked.ID, cmd, string(o.Status), string(o.Status), now)
	describePharmacyOrder(evt, parked)
	evt.Data["parked_reason"] = reason
	evt.Data["partner_kind"] = string(model.PartnerPharmacy)
	return finish(cmd, evt, parked.Version, parked, "assignment pending: "+reason), nil
}

func describePharmacyOrder(evt *model.DomainEvent, o *model.PharmacyOrder) {
	evt.PatientID = &o.PatientID
	evt.AssigneeID = copyID(o.PharmacyID)
	data := model.JSONMap{
		"prescription_id": o.PrescriptionID.String(),
		"pincode":         o.Pincode,
		"items":           len(o.Medications),
	}
	if o.DeliveryPersonName != nil {
		data["delivery_person_name"] = *o.DeliveryPersonName
	}
	if o.DeliveryPersonPhone != nil {
		data["delivery_person_phone"] = *o.DeliveryPersonPhone
	}
	if o.IssueReason != nil {
		data["issue_reason"] = *o.IssueReason
	}
	if o.RefillConfigID != nil {
		data["refill_config_id"] = o.RefillConfigID.String()
	}
	evt.Data = data
}
