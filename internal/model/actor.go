package model

import "github.com/google/uuid"

// Role is the authenticated caller's role.
type Role string

const (
	RolePatient       Role = "PATIENT"
	RoleDoctor        Role = "DOCTOR"
	RolePhlebotomist  Role = "PHLEBOTOMIST"
	RoleLabStaff      Role = "LAB_STAFF"
	RolePharmacyStaff Role = "PHARMACY_STAFF"
	RoleAdmin         Role = "ADMIN"
	// RoleSystem is used by schedulers and reactions. Tokens never carry it.
	RoleSystem Role = "SYSTEM"
)

// ExternalRoles are the roles a token may carry.
var ExternalRoles = []Role{RolePatient, RoleDoctor, RolePhlebotomist, RoleLabStaff, RolePharmacyStaff, RoleAdmin}

func (r Role) External() bool {
	for _, ext := range ExternalRoles {
		if r == ext {
			return true
		}
	}
	return false
}

// Actor is the principal issuing a command.
type Actor struct {
	Role Role      `json:"role"`
	ID   uuid.UUID `json:"id"`
	// PartnerID is the lab, pharmacy or phlebotomist the caller acts for.
	PartnerID *uuid.UUID `json:"partner_id,omitempty"`
}

// SystemActor returns the internal actor used by workers and reactions.
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

// ActsFor reports whether the actor represents partner id.
func (a Actor) ActsFor(id *uuid.UUID) bool {
	if id == nil {
		return false
	}
	if a.PartnerID != nil && *a.PartnerID == *id {
		return true
	}
	return a.ID == *id
}
