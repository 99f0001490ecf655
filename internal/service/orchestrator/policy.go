package orchestrator

import (
	"fmt"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type eventSet map[string]bool

func events[E ~string](evs ...E) eventSet {
	set := make(eventSet, len(evs))
	for _, e := range evs {
		set[string(e)] = true
	}
	return set
}

// roleEvents lists, per role and entity, the events a caller may fire. ADMIN is handled
// separately: everything except MARK_READY.
var roleEvents = map[model.Role]map[model.EntityType]eventSet{
	model.RolePatient: {
		model.EntityLabOrder:      events(model.LabOrderBookSlot, model.LabOrderReschedule, model.LabOrderCancel),
		model.EntityConsultation:  events(model.ConsultationPatientReplied),
		model.EntityPharmacyOrder: events(model.PharmacyCancel),
	},
	model.RoleDoctor: {
		model.EntityConsultation: events(
			model.ConsultationClaim, model.ConsultationApprove, model.ConsultationReject,
			model.ConsultationRequestInfo, model.ConsultationOrderLabs, model.ConsultationScheduleVideo,
		),
		model.EntityLabOrder: events(model.LabOrderReviewResults, model.LabOrderClose),
	},
	model.RolePhlebotomist: {
		model.EntityLabOrder: events(
			model.LabOrderStartRoute, model.LabOrderCollectSample,
			model.LabOrderFailCollection, model.LabOrderDispatchSample,
		),
	},
	model.RoleLabStaff: {
		model.EntityLabOrder: events(model.LabOrderReceiveSample, model.LabOrderStartProcessing, model.LabOrderUploadResults),
	},
	model.RolePharmacyStaff: {
		model.EntityPharmacyOrder: events(
			model.PharmacyAccept, model.PharmacyStartPreparing, model.PharmacyMarkReady,
			model.PharmacyArrangePickup, model.PharmacyDispatch, model.PharmacyDeliver,
			model.PharmacyReportIssue, model.PharmacyFailDelivery,
		),
	},
	model.RoleSystem: {
		model.EntityConsultation: events(
			model.ConsultationCompleteAIAssessment, model.ConsultationLabResultsReady, model.ConsultationOrderLabs,
		),
		model.EntityLabOrder: events(
			model.LabOrderAssignPhlebotomist, model.LabOrderReassignPhlebotomist,
			model.LabOrderDispatchSample, model.LabOrderExpire,
		),
		model.EntityPharmacyOrder: events(model.PharmacySendToPharmacy, model.PharmacyReassignPharmacy),
	},
}

// patientCancellable are the pharmacy states a patient may still cancel from.
var patientCancellable = map[model.PharmacyOrderStatus]bool{
	model.PharmacyPrescriptionCreated: true,
	model.PharmacySentToPharmacy:      true,
}

// authorizeEvent checks the role gate. It runs before the entity is even loaded.
func authorizeEvent(actor model.Actor, entity model.EntityType, event string) error {
	if actor.Role == model.RoleAdmin {
		if entity == model.EntityPharmacyOrder && event == string(model.PharmacyMarkReady) {
			return apperrors.NewForbidden("only pharmacy staff can mark an order ready")
		}
		return nil
	}
	if roleEvents[actor.Role][entity][event] {
		return nil
	}
	return apperrors.NewForbidden(fmt.Sprintf("%s cannot fire %s on %s", actor.Role, event, entity))
}

// CanFire reports whether role may fire event on entity.
func CanFire(role model.Role, entity model.EntityType, event string) bool {
	return authorizeEvent(model.Actor{Role: role}, entity, event) == nil
}

func authorizeLabOrder(actor model.Actor, o *model.LabOrder, doctor *model.Consultation) error {
	switch actor.Role {
	case model.RolePatient:
		if o.PatientID != actor.ID {
			return apperrors.NewForbidden("lab order belongs to another patient")
		}
	case model.RolePhlebotomist:
		if !actor.ActsFor(o.PhlebotomistID) {
			return apperrors.NewForbidden("lab order is assigned to another phlebotomist")
		}
	case model.RoleLabStaff:
		if !actor.ActsFor(o.LabID) {
			return apperrors.NewForbidden("sample is routed to another lab")
		}
	case model.RoleDoctor:
		if doctor != nil && doctor.DoctorID != nil && *doctor.DoctorID != actor.ID {
			return apperrors.NewForbidden("consultation is reviewed by another doctor")
		}
	}
	return nil
}

func authorizePharmacyOrder(actor model.Actor, o *model.PharmacyOrder, event model.PharmacyOrderEvent) error {
	switch actor.Role {
	case model.RolePatient:
		if o.PatientID != actor.ID {
			return apperrors.NewForbidden("pharmacy order belongs to another patient")
		}
		if event == model.PharmacyCancel && !patientCancellable[o.Status] {
			return apperrors.NewForbidden("the pharmacy is already working on this order, please contact support")
		}
	case model.RolePharmacyStaff:
		if !actor.ActsFor(o.PharmacyID) {
			return apperrors.NewForbidden("order is assigned to another pharmacy")
		}
	}
	return nil
}

func authorizeConsultation(actor model.Actor, c *model.Consultation, event model.ConsultationEvent) error {
	switch actor.Role {
	case model.RolePatient:
		if c.PatientID != actor.ID {
			return apperrors.NewForbidden("consultation belongs to another patient")
		}
	case model.RoleDoctor:
		if event == model.ConsultationClaim {
			return nil
		}
		if c.DoctorID == nil || *c.DoctorID != actor.ID {
			return apperrors.NewForbidden("consultation is reviewed by another doctor")
		}
	}
	return nil
}
