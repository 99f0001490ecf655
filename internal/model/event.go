package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain event types published through the outbox.
const (
	EventConsultationCreated            = "ConsultationCreated"
	EventConsultationStatusChanged      = "ConsultationStatusChanged"
	EventLabOrderCreated                = "LabOrderCreated"
	EventLabOrderStatusChanged          = "LabOrderStatusChanged"
	EventLabOrderAssignmentPending      = "LabOrderAssignmentPending"
	EventPharmacyOrderCreated           = "PharmacyOrderCreated"
	EventPharmacyOrderStatusChanged     = "PharmacyOrderStatusChanged"
	EventPharmacyOrderAssignmentPending = "PharmacyOrderAssignmentPending"
	EventPartnerRegistered              = "PartnerRegistered"
	EventPartnerStatusChanged           = "PartnerStatusChanged"
	EventRefillConfigCreated            = "RefillConfigCreated"
	EventRefillConfigCancelled          = "RefillConfigCancelled"
)

// DomainEvent describes something that happened to one aggregate.
type DomainEvent struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	// Event is the command event that caused the change, empty for creations.
	Event string `json:"event,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Actor Actor  `json:"actor"`

	PatientID          *uuid.UUID `json:"patient_id,omitempty"`
	ConsultationID     *uuid.UUID `json:"consultation_id,omitempty"`
	AssigneeID         *uuid.UUID `json:"assignee_id,omitempty"`
	PreviousAssigneeID *uuid.UUID `json:"previous_assignee_id,omitempty"`
	Data               JSONMap    `json:"data,omitempty"`
	OccurredAt         time.Time  `json:"occurred_at"`
}

func NewDomainEvent(eventType string, entityType EntityType, entityID uuid.UUID, actor Actor, at time.Time) *DomainEvent {
	return &DomainEvent{
		ID:         uuid.New(),
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		OccurredAt: at,
	}
}

// ToOutbox wraps the event into a pending outbox row.
func (e *DomainEvent) ToOutbox() (*OutboxEvent, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.Type, err)
	}
	return &OutboxEvent{
		ID:            e.ID,
		EventType:     e.Type,
		AggregateType: e.EntityType,
		AggregateID:   e.EntityID,
		Payload:       payload,
		Status:        OutboxStatusPending,
		CreatedAt:     e.OccurredAt,
		UpdatedAt:     e.OccurredAt,
	}, nil
}

// DomainEventFromOutbox decodes the payload of an outbox row.
func DomainEventFromOutbox(evt *OutboxEvent) (*DomainEvent, error) {
	var out DomainEvent
	if err := json.Unmarshal(evt.Payload, &out); err != nil {
		return nil, fmt.Errorf("failed to decode outbox event %s: %w", evt.ID, err)
	}
	return &out, nil
}
