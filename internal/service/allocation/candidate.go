package allocation

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

// PartnerCandidate adapts a stored partner and its load for the day.
type PartnerCandidate struct {
	Partner       *model.Partner
	AssignedToday int
}

var _ Candidate = PartnerCandidate{}

func (c PartnerCandidate) PartnerID() uuid.UUID {
	return c.Partner.ID
}

func (c PartnerCandidate) IsActive() bool {
	return c.Partner.IsActive()
}

func (c PartnerCandidate) Serves(area model.Area) bool {
	return c.Partner.Serves(area)
}

// HasCapacity treats a non-positive limit as unlimited.
func (c PartnerCandidate) HasCapacity() bool {
	if c.Partner.DailyLimit <= 0 {
		return true
	}
	return c.AssignedToday < c.Partner.DailyLimit
}

func (c PartnerCandidate) Load() int {
	return c.AssignedToday
}

func (c PartnerCandidate) LastAssignedAt() *time.Time {
	return c.Partner.LastAssignedAt
}

// Pool pairs partners of one kind with their current-day counts.
func Pool(kind model.PartnerKind, partners []*model.Partner, loads map[uuid.UUID]int) []PartnerCandidate {
	out := make([]PartnerCandidate, 0, len(partners))
	for _, p := range partners {
		if p.Kind != kind {
			continue
		}
		out = append(out, PartnerCandidate{Partner: p, AssignedToday: loads[p.ID]})
	}
	return out
}
