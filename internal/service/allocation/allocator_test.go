package allocation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

func phlebotomist(name string, status model.PartnerStatus, pincodes []string, limit int) *model.Partner {
	return &model.Partner{
		Base:                model.Base{ID: uuid.New()},
		Kind:                model.PartnerPhlebotomist,
		Name:                name,
		Status:              status,
		ServiceablePincodes: pincodes,
		ServiceableCities:   []string{"Mumbai"},
		DailyLimit:          limit,
	}
}

func andheriItem() WorkItem {
	return WorkItem{Kind: model.PartnerPhlebotomist, Area: model.Area{Pincode: "400058", City: "Mumbai"}}
}

func TestAllocatePicksOnlyServingActivePartner(t *testing.T) {
	serving := phlebotomist("Asha", model.PartnerActive, []string{"400058"}, 8)
	otherArea := phlebotomist("Ravi", model.PartnerActive, []string{"400001"}, 8)
	suspended := phlebotomist("Meena", model.PartnerSuspended, []string{"400058"}, 8)

	partners := []*model.Partner{otherArea, suspended, serving}
	loads := map[uuid.UUID]int{serving.ID: 3}

	got, err := Allocate(andheriItem(), Pool(model.PartnerPhlebotomist, partners, loads))
	require.NoError(t, err)
	assert.Equal(t, serving.ID, got.PartnerID())
}

func TestAllocateFullPartnerYieldsNoEligiblePartner(t *testing.T) {
	serving := phlebotomist("Asha", model.PartnerActive, []string{"400058"}, 8)
	otherArea := phlebotomist("Ravi", model.PartnerActive, []string{"400001"}, 8)
	suspended := phlebotomist("Meena", model.PartnerSuspended, []string{"400058"}, 8)

	partners := []*model.Partner{otherArea, suspended, serving}
	loads := map[uuid.UUID]int{serving.ID: 8}

	_, err := Allocate(andheriItem(), Pool(model.PartnerPhlebotomist, partners, loads))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNoEligiblePartner))
}

func TestAllocateRanksByLoadThenIdleTime(t *testing.T) {
	earlier := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	later := earlier.Add(2 * time.Hour)

	busy := phlebotomist("busy", model.PartnerActive, []string{"400058"}, 0)
	recent := phlebotomist("recent", model.PartnerActive, []string{"400058"}, 0)
	recent.LastAssignedAt = &later
	idle := phlebotomist("idle", model.PartnerActive, []string{"400058"}, 0)
	idle.LastAssignedAt = &earlier

	loads := map[uuid.UUID]int{busy.ID: 5, recent.ID: 2, idle.ID: 2}
	got, err := Allocate(andheriItem(), Pool(model.PartnerPhlebotomist, []*model.Partner{busy, recent, idle}, loads))
	require.NoError(t, err)
	assert.Equal(t, idle.ID, got.PartnerID())

	never := phlebotomist("never", model.PartnerActive, []string{"400058"}, 0)
	loads[never.ID] = 2
	got, err = Allocate(andheriItem(), Pool(model.PartnerPhlebotomist, []*model.Partner{busy, recent, idle, never}, loads))
	require.NoError(t, err)
	assert.Equal(t, never.ID, got.PartnerID())
}

func TestAllocateExcludesPreviousAssignee(t *testing.T) {
	first := phlebotomist("first", model.PartnerActive, []string{"400058"}, 0)
	second := phlebotomist("second", model.PartnerActive, []string{"400058"}, 0)
	loads := map[uuid.UUID]int{first.ID: 0, second.ID: 4}

	item := andheriItem()
	item.Exclude = []uuid.UUID{first.ID}
	got, err := Allocate(item, Pool(model.PartnerPhlebotomist, []*model.Partner{first, second}, loads))
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.PartnerID())

	item.Exclude = append(item.Exclude, second.ID)
	_, err = Allocate(item, Pool(model.PartnerPhlebotomist, []*model.Partner{first, second}, loads))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNoEligiblePartner))
}

func TestAllocateCityFallback(t *testing.T) {
	cityOnly := phlebotomist("city", model.PartnerActive, nil, 0)
	got, err := Allocate(andheriItem(), Pool(model.PartnerPhlebotomist, []*model.Partner{cityOnly}, nil))
	require.NoError(t, err)
	assert.Equal(t, cityOnly.ID, got.PartnerID())
}

func TestPoolFiltersKind(t *testing.T) {
	lab := phlebotomist("lab", model.PartnerActive, []string{"400058"}, 0)
	lab.Kind = model.PartnerLab

	_, err := Allocate(andheriItem(), Pool(model.PartnerPhlebotomist, []*model.Partner{lab}, nil))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNoEligiblePartner))
}

// stubCandidate shows the allocator works for any capability implementation.
type stubCandidate struct {
	id     uuid.UUID
	active bool
	load   int
}

func (s stubCandidate) PartnerID() uuid.UUID       { return s.id }
func (s stubCandidate) IsActive() bool             { return s.active }
func (s stubCandidate) Serves(model.Area) bool     { return true }
func (s stubCandidate) HasCapacity() bool          { return true }
func (s stubCandidate) Load() int                  { return s.load }
func (s stubCandidate) LastAssignedAt() *time.Time { return nil }

func TestAllocateGenericCandidate(t *testing.T) {
	a := stubCandidate{id: uuid.New(), active: true, load: 3}
	b := stubCandidate{id: uuid.New(), active: true, load: 1}
	c := stubCandidate{id: uuid.New(), active: false, load: 0}

	got, err := Allocate(WorkItem{Kind: model.PartnerPharmacy}, []stubCandidate{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, b.id, got.id)
}
