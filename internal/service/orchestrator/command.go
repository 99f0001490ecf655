package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// Command asks the orchestrator to fire one event on one entity.
type Command struct {
	Entity   model.EntityType `json:"entity"`
	EntityID uuid.UUID        `json:"entity_id"`
	Event    string           `json:"event"`
	Actor    model.Actor      `json:"-"`
	// ExpectedVersion rejects the command when the entity moved on since the caller read it.
	ExpectedVersion *int `json:"expected_version,omitempty"`
	// IdempotencyKey makes a retried command return the first result instead of running again.
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	Payload        Payload `json:"payload"`
}

// Payload carries the event specific inputs. Fields an event does not use are ignored.
type Payload struct {
	BookedDate string `json:"booked_date,omitempty"`
	TimeSlot   string `json:"time_slot,omitempty"`

	// PartnerID pins an assignment to one partner (admin override).
	PartnerID *uuid.UUID `json:"partner_id,omitempty"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`

	ResultFileURL  string `json:"result_file_url,omitempty"`
	CriticalValues bool   `json:"critical_values,omitempty"`

	DeliveryPersonName  string `json:"delivery_person_name,omitempty"`
	DeliveryPersonPhone string `json:"delivery_person_phone,omitempty"`

	Reason   string `json:"reason,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

func (c Command) validate() error {
	if !c.Entity.Valid() || c.Entity == model.EntityRefillConfig || c.Entity == model.EntityPartner {
		return apperrors.NewBadRequest(fmt.Sprintf("entity %q does not accept commands", c.Entity), nil)
	}
	if c.EntityID == uuid.Nil {
		return apperrors.NewBadRequest("entity_id is required", nil)
	}
	if strings.TrimSpace(c.Event) == "" {
		return apperrors.NewBadRequest("event is required", nil)
	}
	if c.Actor.Role != model.RoleSystem && !c.Actor.Role.External() {
		return apperrors.Unauthorized(fmt.Errorf("unknown caller role %q", c.Actor.Role))
	}
	return nil
}

// Result reports what a command did. AssignmentPending is set when the item was parked
// because no partner could take it; that is not an error.
type Result struct {
	Entity            model.EntityType `json:"entity"`
	EntityID          uuid.UUID        `json:"entity_id"`
	Event             string           `json:"event"`
	From              string           `json:"from"`
	To                string           `json:"to"`
	Version           int              `json:"version"`
	AssignmentPending bool             `json:"assignment_pending"`
	AssigneeID        *uuid.UUID       `json:"assignee_id,omitempty"`
	Message           string           `json:"message,omitempty"`
	Replayed          bool             `json:"replayed,omitempty"`
	State             interface{}      `json:"state"`
}

// Config switches the optional reactions and sets command defaults.
type Config struct {
	AutoAssignOnBooking     bool
	AutoRoutePharmacyOrders bool
	ReassignOnSuspension    bool
	IdempotencyTTL          time.Duration
	// SlotLocation is the wall clock booked time slots are written in.
	SlotLocation     *time.Location
	MaxReactionDepth int
}

func (c Config) withDefaults() Config {
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 10 * time.Minute
	}
	if c.SlotLocation == nil {
		c.SlotLocation = time.UTC
	}
	if c.MaxReactionDepth <= 0 {
		c.MaxReactionDepth = 3
	}
	return c
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
