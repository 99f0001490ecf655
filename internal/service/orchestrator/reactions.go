package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// reaction is one row of the cross-entity reaction table. Reactions run after the
// triggering transaction committed, as SYSTEM, and never fail the triggering command.
type reaction struct {
	name    string
	applies func(cfg Config, evt *model.DomainEvent) bool
	run     func(s *Service, ctx context.Context, evt *model.DomainEvent, depth int) error
}

func reactionTable() []reaction {
	return []reaction{
		{
			name: "lab_ordered",
			applies: func(_ Config, evt *model.DomainEvent) bool {
				return evt.Type == model.EventLabOrderCreated && evt.ConsultationID != nil
			},
			run: (*Service).orderLabs,
		},
		{
			name: "lab_results_ready",
			applies: func(_ Config, evt *model.DomainEvent) bool {
				return evt.Type == model.EventLabOrderStatusChanged &&
					evt.To == string(model.LabOrderResultsUploaded) && evt.ConsultationID != nil
			},
			run: (*Service).labResultsReady,
		},
		{
			name: "auto_assign_phlebotomist",
			applies: func(cfg Config, evt *model.DomainEvent) bool {
				if !cfg.AutoAssignOnBooking || evt.Type != model.EventLabOrderStatusChanged ||
					evt.To != string(model.LabOrderSlotBooked) {
					return false
				}
				// a rebooking after a failed collection waits for an operator
				return evt.Event == string(model.LabOrderReschedule) ||
					(evt.Event == string(model.LabOrderBookSlot) && evt.From == string(model.LabOrderOrdered))
			},
			run: func(s *Service, ctx context.Context, evt *model.DomainEvent, depth int) error {
				_, err := s.system(ctx, model.EntityLabOrder, evt.EntityID, string(model.LabOrderAssignPhlebotomist), depth)
				return err
			},
		},
		{
			name: "auto_route_pharmacy",
			applies: func(cfg Config, evt *model.DomainEvent) bool {
				return cfg.AutoRoutePharmacyOrders && evt.Type == model.EventPharmacyOrderCreated
			},
			run: func(s *Service, ctx context.Context, evt *model.DomainEvent, depth int) error {
				_, err := s.system(ctx, model.EntityPharmacyOrder, evt.EntityID, string(model.PharmacySendToPharmacy), depth)
				return err
			},
		},
		{
			name: "reassign_on_suspension",
			applies: func(cfg Config, evt *model.DomainEvent) bool {
				return cfg.ReassignOnSuspension && evt.Type == model.EventPartnerStatusChanged &&
					evt.To == string(model.PartnerSuspended)
			},
			run: (*Service).reassignSuspended,
		},
	}
}

// react runs every matching reaction for the committed events.
func (s *Service) react(ctx context.Context, evts []*model.DomainEvent, depth int) {
	if len(evts) == 0 {
		return
	}
	if depth >= s.cfg.MaxReactionDepth {
		s.logger.Warn("reaction depth exceeded, dropping follow-up work", "depth", depth, "event", evts[0].Type)
		return
	}
	// the caller may be gone, the follow-up work still belongs to the committed change
	ctx = context.WithoutCancel(ctx)

	for _, evt := range evts {
		for _, r := range reactionTable() {
			if !r.applies(s.cfg, evt) {
				continue
			}
			err := r.run(s, ctx, evt, depth)
			outcome := "ok"
			switch {
			case err == nil:
			case apperrors.CodeOf(err) == apperrors.ErrInternal:
				outcome = "failed"
				s.logger.Error(err, "reaction failed", "rule", r.name, "entity_id", evt.EntityID.String())
			default:
				outcome = "skipped"
				s.logger.Debug("reaction skipped", "rule", r.name, "entity_id", evt.EntityID.String(), "reason", err.Error())
			}
			s.metrics.ReactionsTotal.WithLabelValues(r.name, outcome).Inc()
		}
	}
}

func (s *Service) system(ctx context.Context, entity model.EntityType, id uuid.UUID, ev string, depth int) (*Result, error) {
	return s.execute(ctx, Command{
		Entity:   entity,
		EntityID: id,
		Event:    ev,
		Actor:    model.SystemActor(),
	}, depth+1)
}

func (s *Service) orderLabs(ctx context.Context, evt *model.DomainEvent, depth int) error {
	c, err := s.store.Consultations().Get(ctx, *evt.ConsultationID)
	if err != nil {
		return err
	}
	if c.Status != model.ConsultationDoctorReviewing {
		return nil
	}
	_, err = s.system(ctx, model.EntityConsultation, c.ID, string(model.ConsultationOrderLabs), depth)
	return err
}

// labResultsReady moves a waiting consultation back to the doctor. A consultation that is
// not waiting only gets its results flag set.
func (s *Service) labResultsReady(ctx context.Context, evt *model.DomainEvent, depth int) error {
	c, err := s.store.Consultations().Get(ctx, *evt.ConsultationID)
	if err != nil {
		return err
	}
	if c.Status == model.ConsultationAwaitingLabs {
		_, err = s.system(ctx, model.EntityConsultation, c.ID, string(model.ConsultationLabResultsReady), depth)
		return err
	}
	if c.LabResultsAvailable {
		return nil
	}
	return s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Consultations().Get(ctx, c.ID)
		if err != nil {
			return err
		}
		current.LabResultsAvailable = true
		current.UpdatedAt = s.now()
		return tx.Consultations().Update(ctx, current)
	})
}

// reassignSuspended moves the suspended partner's not-yet-started work elsewhere. Work
// already in progress stays where it is.
func (s *Service) reassignSuspended(ctx context.Context, evt *model.DomainEvent, depth int) error {
	partnerID := evt.EntityID
	var targets []parkedWork

	switch model.PartnerKind(fmt.Sprint(evt.Data["kind"])) {
	case model.PartnerPhlebotomist:
		orders, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{
			PhlebotomistID: &partnerID,
			Statuses:       []model.LabOrderStatus{model.LabOrderPhlebotomistAssigned},
		})
		if err != nil {
			return fmt.Errorf("failed to list assigned lab orders: %w", err)
		}
		for _, o := range orders {
			targets = append(targets, parkedWork{model.EntityLabOrder, o.ID, string(model.LabOrderReassignPhlebotomist)})
		}
	case model.PartnerPharmacy:
		orders, err := s.store.PharmacyOrders().List(ctx, model.PharmacyOrderFilter{
			PharmacyID: &partnerID,
			Statuses:   []model.PharmacyOrderStatus{model.PharmacySentToPharmacy},
		})
		if err != nil {
			return fmt.Errorf("failed to list routed pharmacy orders: %w", err)
		}
		for _, o := range orders {
			targets = append(targets, parkedWork{model.EntityPharmacyOrder, o.ID, string(model.PharmacyReassignPharmacy)})
		}
	default:
		return nil
	}

	var firstErr error
	for _, t := range targets {
		if _, err := s.system(ctx, t.entity, t.id, t.event, depth); err != nil {
			s.logger.Warn("reassignment after suspension failed", "entity_id", t.id.String(), "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
