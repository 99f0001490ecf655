// Package allocation picks the partner that services a work item. It is a pure function of
// the work item and the pool handed to it; callers load the pool fresh for every call.
package allocation

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

// Candidate is the capability set the allocator needs from a partner.
type Candidate interface {
	PartnerID() uuid.UUID
	IsActive() bool
	Serves(area model.Area) bool
	HasCapacity() bool
	Load() int
	LastAssignedAt() *time.Time
}

// WorkItem describes what needs servicing and who must not get it.
type WorkItem struct {
	Kind    model.PartnerKind
	Area    model.Area
	Exclude []uuid.UUID
}

// Allocate filters the pool to active partners serving the item's area with capacity left,
// then returns the least loaded one. Ties go to whoever has waited longest since their last
// assignment, then to the lowest id so results are deterministic.
func Allocate[C Candidate](item WorkItem, pool []C) (C, error) {
	var zero C

	excluded := make(map[uuid.UUID]bool, len(item.Exclude))
	for _, id := range item.Exclude {
		excluded[id] = true
	}

	eligible := make([]C, 0, len(pool))
	for _, c := range pool {
		if excluded[c.PartnerID()] {
			continue
		}
		if !c.IsActive() {
			continue
		}
		if !c.Serves(item.Area) {
			continue
		}
		if !c.HasCapacity() {
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) == 0 {
		return zero, apperrors.NewNoEligiblePartner(kindLabel(item.Kind))
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Load() != b.Load() {
			return a.Load() < b.Load()
		}
		la, lb := a.LastAssignedAt(), b.LastAssignedAt()
		switch {
		case la == nil && lb != nil:
			return true
		case la != nil && lb == nil:
			return false
		case la != nil && lb != nil && !la.Equal(*lb):
			return la.Before(*lb)
		}
		return a.PartnerID().String() < b.PartnerID().String()
	})

	return eligible[0], nil
}

func kindLabel(kind model.PartnerKind) string {
	switch kind {
	case model.PartnerLab:
		return "lab"
	case model.PartnerPhlebotomist:
		return "phlebotomist"
	case model.PartnerPharmacy:
		return "pharmacy"
	}
	return "partner"
}
