package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/transition"
)

// resultStatuses are lab order states that carry an uploaded result.
var resultStatuses = []model.LabOrderStatus{
	model.LabOrderResultsUploaded,
	model.LabOrderDoctorReviewed,
	model.LabOrderClosed,
}

func (s *Service) executeConsultation(ctx context.Context, tx repository.Store, cmd Command, now time.Time) (*outcome, error) {
	c, err := tx.Consultations().Get(ctx, cmd.EntityID)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(cmd, c.Version, "consultation"); err != nil {
		return nil, err
	}

	ev := model.ConsultationEvent(cmd.Event)
	if err := authorizeConsultation(cmd.Actor, c, ev); err != nil {
		return nil, err
	}

	work := c.Clone()
	switch ev {
	case model.ConsultationClaim:
		switch {
		case cmd.Actor.Role == model.RoleDoctor:
			doctor := cmd.Actor.ID
			work.DoctorID = &doctor
		case cmd.Payload.DoctorID != nil:
			work.DoctorID = copyID(cmd.Payload.DoctorID)
		}
	case model.ConsultationLabResultsReady:
		if !work.LabResultsAvailable {
			available, err := hasLabResults(ctx, tx, work)
			if err != nil {
				return nil, err
			}
			work.LabResultsAvailable = available
		}
	}

	to, err := transition.ValidateConsultation(c.Status, ev, transition.ConsultationContextFor(work))
	if err != nil {
		return nil, err
	}

	switch ev {
	case model.ConsultationClaim:
		work.ClaimedAt = &now
	case model.ConsultationRequestInfo:
		work.InfoRequestedAt = &now
	case model.ConsultationApprove:
		work.DecidedAt = &now
	case model.ConsultationReject:
		work.DecidedAt = &now
		work.RejectionReason = optional(cmd.Payload.Reason)
	case model.ConsultationOrderLabs:
		// a fresh round of labs needs fresh results
		work.LabResultsAvailable = false
	}

	work.Status = to
	work.UpdatedAt = now
	if err := tx.Consultations().Update(ctx, work); err != nil {
		return nil, err
	}

	evt := s.changed(model.EventConsultationStatusChanged, model.EntityConsultation, work.ID, cmd, string(c.Status), string(to), now)
	evt.PatientID = &work.PatientID
	evt.ConsultationID = &work.ID
	evt.AssigneeID = copyID(work.DoctorID)
	evt.Data = model.JSONMap{"vertical": string(work.Vertical)}
	return finish(cmd, evt, work.Version, work, cmd.Payload.Reason), nil
}

func hasLabResults(ctx context.Context, tx repository.Store, c *model.Consultation) (bool, error) {
	orders, err := tx.LabOrders().List(ctx, model.LabOrderFilter{
		ConsultationID: &c.ID,
		Statuses:       resultStatuses,
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up lab results: %w", err)
	}
	for _, o := range orders {
		if o.ResultFileURL != nil && *o.ResultFileURL != "" {
			return true, nil
		}
	}
	return false, nil
}
