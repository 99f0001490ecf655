// Package notification turns committed domain events into messages for the people they
// concern. It is fed by the outbox processor, so a message is only ever sent for a change
// that was persisted.
package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/email"
	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/pkg/logger"
	"github.com/jwalitptl/fulfillment-api/pkg/messaging"
	"github.com/jwalitptl/fulfillment-api/pkg/metrics"
)

const (
	channelBroker = "broker"
	channelEmail  = "email"

	channelPrefix = "notifications"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, evt *model.DomainEvent) error
}

type Service struct {
	partners repository.PartnerRepository
	patients repository.PatientRepository
	emailSvc email.Service
	broker   messaging.Broker
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(store repository.Store, emailSvc email.Service, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics) *Service {
	if emailSvc == nil {
		emailSvc = email.Nop{}
	}
	return &Service{
		partners: store.Partners(),
		patients: store.Patients(),
		emailSvc: emailSvc,
		broker:   broker,
		logger:   log,
		metrics:  m,
	}
}

type recipient struct {
	id   uuid.UUID
	kind model.RecipientKind
}

// Dispatch sends one notification per recipient of evt. Lookup failures are returned so
// the caller can retry the event; channel failures are only counted and logged.
func (s *Service) Dispatch(ctx context.Context, evt *model.DomainEvent) error {
	subject, ok := subjectFor(evt)
	if !ok {
		return nil
	}

	for _, r := range recipientsOf(evt) {
		n := &model.Notification{
			ID:            uuid.New(),
			EventType:     evt.Type,
			RecipientID:   r.id,
			RecipientKind: r.kind,
			Subject:       subject,
			Content:       contentFor(evt, r.kind),
			Payload:       evt.Data,
			CreatedAt:     evt.OccurredAt,
		}
		addr, err := s.address(ctx, r)
		if err != nil {
			return fmt.Errorf("failed to resolve %s %s: %w", r.kind, r.id, err)
		}
		n.Recipient = addr

		s.send(ctx, channelBroker, n, func() error {
			return s.broker.Publish(ctx, channelPrefix+"."+string(r.kind), n)
		})
		if addr != "" {
			s.send(ctx, channelEmail, n, func() error {
				return s.emailSvc.Send(ctx, addr, n.Subject, n.Content)
			})
		}
	}
	return nil
}

func (s *Service) send(_ context.Context, channel string, n *model.Notification, fn func() error) {
	n.Channel = channel
	if err := fn(); err != nil {
		s.metrics.NotificationsDispatched.WithLabelValues(channel, string(model.NotificationStatusFailed)).Inc()
		s.logger.Warn("notification not delivered",
			"channel", channel,
			"event_type", n.EventType,
			"recipient_id", n.RecipientID.String(),
			"error", err.Error())
		return
	}
	s.metrics.NotificationsDispatched.WithLabelValues(channel, string(model.NotificationStatusSent)).Inc()
}

// address finds the email of a recipient. Operations has no mailbox.
func (s *Service) address(ctx context.Context, r recipient) (string, error) {
	switch r.kind {
	case model.RecipientPatient:
		summaries, err := s.patients.GetSummaries(ctx, []uuid.UUID{r.id})
		if err != nil {
			return "", err
		}
		if p, ok := summaries[r.id]; ok {
			return p.Email, nil
		}
		return "", nil
	case model.RecipientPartner:
		p, err := s.partners.Get(ctx, r.id)
		if err != nil {
			return "", err
		}
		return p.Email, nil
	}
	return "", nil
}

func recipientsOf(evt *model.DomainEvent) []recipient {
	var out []recipient
	seen := map[uuid.UUID]bool{}
	add := func(id *uuid.UUID, kind model.RecipientKind) {
		if id == nil || *id == uuid.Nil || seen[*id] {
			return
		}
		seen[*id] = true
		out = append(out, recipient{id: *id, kind: kind})
	}

	switch evt.Type {
	case model.EventLabOrderAssignmentPending, model.EventPharmacyOrderAssignmentPending:
		return []recipient{{id: evt.EntityID, kind: model.RecipientOperations}}
	case model.EventPartnerRegistered, model.EventPartnerStatusChanged:
		add(&evt.EntityID, model.RecipientPartner)
		return out
	}

	add(evt.PatientID, model.RecipientPatient)
	add(evt.AssigneeID, model.RecipientPartner)
	if evt.To == string(model.LabOrderSampleInTransit) {
		if raw, ok := evt.Data["lab_id"].(string); ok {
			if id, err := uuid.Parse(raw); err == nil {
				add(&id, model.RecipientPartner)
			}
		}
	}
	add(evt.PreviousAssigneeID, model.RecipientPartner)
	return out
}

func subjectFor(evt *model.DomainEvent) (string, bool) {
	switch evt.Type {
	case model.EventLabOrderCreated:
		return "Your lab tests are ready to book", true
	case model.EventPharmacyOrderCreated:
		return "Your prescription order was created", true
	case model.EventLabOrderAssignmentPending, model.EventPharmacyOrderAssignmentPending:
		return "Work item waiting for a partner", true
	case model.EventPartnerRegistered:
		return "Partner registration received", true
	case model.EventLabOrderStatusChanged, model.EventPharmacyOrderStatusChanged,
		model.EventConsultationStatusChanged, model.EventPartnerStatusChanged:
		return fmt.Sprintf("%s is now %s", entityLabel(evt.EntityType), humanize(evt.To)), true
	}
	return "", false
}

func contentFor(evt *model.DomainEvent, kind model.RecipientKind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", entityLabel(evt.EntityType), evt.EntityID)
	if evt.From != "" && evt.To != "" && evt.From != evt.To {
		fmt.Fprintf(&b, " moved from %s to %s", humanize(evt.From), humanize(evt.To))
	}
	b.WriteString(".")
	if kind == model.RecipientPartner && evt.PreviousAssigneeID != nil && evt.AssigneeID != nil &&
		*evt.PreviousAssigneeID != *evt.AssigneeID {
		b.WriteString(" The work was reassigned.")
	}
	if slot, ok := evt.Data["booked_time_slot"].(string); ok {
		fmt.Fprintf(&b, " Slot: %v %s.", evt.Data["booked_date"], slot)
	}
	if reason, ok := evt.Data["parked_reason"].(string); ok {
		fmt.Fprintf(&b, " Reason: %s.", reason)
	}
	if reason, ok := evt.Data["issue_reason"].(string); ok && kind != model.RecipientPatient {
		fmt.Fprintf(&b, " Issue: %s.", reason)
	}
	return b.String()
}

func entityLabel(t model.EntityType) string {
	switch t {
	case model.EntityLabOrder:
		return "Lab order"
	case model.EntityPharmacyOrder:
		return "Pharmacy order"
	case model.EntityConsultation:
		return "Consultation"
	case model.EntityPartner:
		return "Partner account"
	}
	return string(t)
}

func humanize(status string) string {
	return strings.ToLower(strings.ReplaceAll(status, "_", " "))
}
