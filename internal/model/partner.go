package model

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

type PartnerKind string

const (
	PartnerLab          PartnerKind = "LAB"
	PartnerPhlebotomist PartnerKind = "PHLEBOTOMIST"
	PartnerPharmacy     PartnerKind = "PHARMACY"
)

type PartnerStatus string

const (
	PartnerPendingReview PartnerStatus = "PENDING_REVIEW"
	PartnerActive        PartnerStatus = "ACTIVE"
	PartnerSuspended     PartnerStatus = "SUSPENDED"
	PartnerInactive      PartnerStatus = "INACTIVE"
)

func (s PartnerStatus) Valid() bool {
	switch s {
	case PartnerPendingReview, PartnerActive, PartnerSuspended, PartnerInactive:
		return true
	}
	return false
}

// Area identifies where a work item must be serviced.
type Area struct {
	Pincode string `json:"pincode"`
	City    string `json:"city"`
}

type Partner struct {
	Base
	Version             int            `db:"version" json:"version"`
	Kind                PartnerKind    `db:"kind" json:"kind"`
	Name                string         `db:"name" json:"name"`
	Phone               string         `db:"phone" json:"phone"`
	Email               string         `db:"email" json:"email"`
	Status              PartnerStatus  `db:"status" json:"status"`
	ServiceablePincodes pq.StringArray `db:"serviceable_pincodes" json:"serviceable_pincodes"`
	ServiceableCities   pq.StringArray `db:"serviceable_cities" json:"serviceable_cities"`
	// DailyLimit is maxDailyCollections for phlebotomists and labs, dailyCaseLimit for
	// pharmacies. Zero or less means no limit.
	DailyLimit       int        `db:"daily_limit" json:"daily_limit"`
	CredentialExpiry *time.Time `db:"credential_expiry" json:"credential_expiry,omitempty"`
	LastAssignedAt   *time.Time `db:"last_assigned_at" json:"last_assigned_at,omitempty"`
}

func (p *Partner) IsActive() bool {
	return p.Status == PartnerActive
}

// Serves matches the pincode exactly; the city is only consulted when pincode-level data
// is missing on either side.
func (p *Partner) Serves(area Area) bool {
	if area.Pincode != "" && len(p.ServiceablePincodes) > 0 {
		for _, pin := range p.ServiceablePincodes {
			if pin == area.Pincode {
				return true
			}
		}
		return false
	}
	if area.City == "" {
		return false
	}
	for _, city := range p.ServiceableCities {
		if strings.EqualFold(strings.TrimSpace(city), strings.TrimSpace(area.City)) {
			return true
		}
	}
	return false
}

func (p *Partner) Clone() *Partner {
	out := *p
	out.ServiceablePincodes = cloneStrings(p.ServiceablePincodes)
	out.ServiceableCities = cloneStrings(p.ServiceableCities)
	out.CredentialExpiry = cloneTime(p.CredentialExpiry)
	out.LastAssignedAt = cloneTime(p.LastAssignedAt)
	return &out
}
