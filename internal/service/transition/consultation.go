package transition

import (
	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type ConsultationContext struct {
	HasDoctor           bool
	LabResultsAvailable bool
}

func ConsultationContextFor(c *model.Consultation) ConsultationContext {
	return ConsultationContext{
		HasDoctor:           c.DoctorID != nil,
		LabResultsAvailable: c.LabResultsAvailable,
	}
}

var consultations = func() *Machine[model.ConsultationStatus, model.ConsultationEvent, ConsultationContext] {
	m := newMachine[model.ConsultationStatus, model.ConsultationEvent, ConsultationContext](
		model.EntityConsultation,
		model.ConsultationApproved, model.ConsultationRejected,
	)

	m.edge(model.ConsultationCompleteAIAssessment, model.ConsultationAIReviewed, model.ConsultationPendingAssessment).
		edge(model.ConsultationClaim, model.ConsultationDoctorReviewing, model.ConsultationAIReviewed).
		edge(model.ConsultationApprove, model.ConsultationApproved, model.ConsultationDoctorReviewing, model.ConsultationVideoScheduled).
		edge(model.ConsultationReject, model.ConsultationRejected, model.ConsultationDoctorReviewing, model.ConsultationVideoScheduled).
		edge(model.ConsultationRequestInfo, model.ConsultationNeedsInfo, model.ConsultationDoctorReviewing).
		edge(model.ConsultationPatientReplied, model.ConsultationDoctorReviewing, model.ConsultationNeedsInfo).
		edge(model.ConsultationOrderLabs, model.ConsultationAwaitingLabs, model.ConsultationDoctorReviewing).
		edge(model.ConsultationLabResultsReady, model.ConsultationDoctorReviewing, model.ConsultationAwaitingLabs).
		edge(model.ConsultationScheduleVideo, model.ConsultationVideoScheduled, model.ConsultationDoctorReviewing)

	doctorRequired := func(c ConsultationContext) error {
		return precondition(c.HasDoctor, "consultation has no reviewing doctor")
	}
	m.guard(model.ConsultationClaim, doctorRequired).
		guard(model.ConsultationApprove, doctorRequired).
		guard(model.ConsultationReject, doctorRequired).
		guard(model.ConsultationRequestInfo, doctorRequired).
		guard(model.ConsultationOrderLabs, doctorRequired).
		guard(model.ConsultationScheduleVideo, doctorRequired).
		guard(model.ConsultationLabResultsReady, func(c ConsultationContext) error {
			return precondition(c.LabResultsAvailable, "lab results are not available yet")
		})

	return m
}()

func Consultations() *Machine[model.ConsultationStatus, model.ConsultationEvent, ConsultationContext] {
	return consultations
}

func ValidateConsultation(from model.ConsultationStatus, event model.ConsultationEvent, ctx ConsultationContext) (model.ConsultationStatus, error) {
	return consultations.Validate(from, event, ctx)
}
