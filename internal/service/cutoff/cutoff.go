// Package cutoff evaluates wall-clock business rules that sit beside the state graphs.
package cutoff

import (
	"time"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// Fixed so the rules stay auditable; not configurable per partner.
const (
	LabChangeWindow         = 4 * time.Hour
	CredentialWarningWindow = 30 * 24 * time.Hour
)

type Action string

const (
	ActionCancel     Action = "CANCEL"
	ActionReschedule Action = "RESCHEDULE"
	ActionRefill     Action = "REFILL"
	ActionAssign     Action = "ASSIGN"
)

// LabCutoffMessage is shown to patients who hit the collection cutoff.
const LabCutoffMessage = "cannot cancel or reschedule within 4 hours of your scheduled collection, please contact support"

// IsActionAllowed evaluates the rule that applies to the entity/action pair. Pairs without
// a rule are allowed.
func IsActionAllowed(entity interface{}, action Action, now time.Time) bool {
	switch e := entity.(type) {
	case *model.LabOrder:
		if action == ActionCancel || action == ActionReschedule {
			return LabChangeAllowed(e, now)
		}
	case *model.AutoRefillConfig:
		if action == ActionRefill {
			return RefillDue(e, now)
		}
	}
	return true
}

// LabChangeAllowed blocks cancel/reschedule once a phlebotomist is assigned and the slot
// starts in less than four hours. Exactly four hours out is still allowed.
func LabChangeAllowed(o *model.LabOrder, now time.Time) bool {
	if o.BookedAt == nil {
		return true
	}
	if o.Status != model.LabOrderPhlebotomistAssigned {
		return true
	}
	return o.BookedAt.UTC().Sub(now.UTC()) >= LabChangeWindow
}

// CheckLabChange is LabChangeAllowed as a typed rejection.
func CheckLabChange(o *model.LabOrder, now time.Time) error {
	if LabChangeAllowed(o, now) {
		return nil
	}
	return apperrors.NewCutoffExceeded(LabCutoffMessage)
}

// RefillDue reports whether an active config should fire at now.
func RefillDue(c *model.AutoRefillConfig, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return !now.UTC().Before(c.NextRefillDate.UTC())
}

// CredentialExpiringSoon is a read-only warning; it never blocks assignment.
func CredentialExpiringSoon(p *model.Partner, now time.Time) bool {
	if p.CredentialExpiry == nil {
		return false
	}
	left := p.CredentialExpiry.UTC().Sub(now.UTC())
	return left > 0 && left <= CredentialWarningWindow
}

// DaysLeft rounds the remaining credential validity down to whole days.
func DaysLeft(p *model.Partner, now time.Time) int {
	if p.CredentialExpiry == nil {
		return 0
	}
	return int(p.CredentialExpiry.UTC().Sub(now.UTC()) / (24 * time.Hour))
}

// ForLabEvent maps a lab order event onto the action the cutoff rules know about.
func ForLabEvent(event model.LabOrderEvent) (Action, bool) {
	switch event {
	case model.LabOrderCancel:
		return ActionCancel, true
	case model.LabOrderReschedule:
		return ActionReschedule, true
	}
	return "", false
}
