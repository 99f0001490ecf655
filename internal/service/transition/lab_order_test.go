package transition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

type labKey struct {
	from  model.LabOrderStatus
	event model.LabOrderEvent
}

// expectedLabGraph is written out by hand so the machine is checked against an
// independent copy of the graph.
func expectedLabGraph() map[labKey]model.LabOrderStatus {
	g := map[labKey]model.LabOrderStatus{
		{model.LabOrderOrdered, model.LabOrderBookSlot}:                          model.LabOrderSlotBooked,
		{model.LabOrderCollectionFailed, model.LabOrderBookSlot}:                 model.LabOrderSlotBooked,
		{model.LabOrderSlotBooked, model.LabOrderReschedule}:                     model.LabOrderSlotBooked,
		{model.LabOrderPhlebotomistAssigned, model.LabOrderReschedule}:           model.LabOrderSlotBooked,
		{model.LabOrderSlotBooked, model.LabOrderAssignPhlebotomist}:             model.LabOrderPhlebotomistAssigned,
		{model.LabOrderPhlebotomistAssigned, model.LabOrderReassignPhlebotomist}: model.LabOrderPhlebotomistAssigned,
		{model.LabOrderPhlebotomistEnRoute, model.LabOrderReassignPhlebotomist}:  model.LabOrderPhlebotomistAssigned,
		{model.LabOrderPhlebotomistAssigned, model.LabOrderStartRoute}:           model.LabOrderPhlebotomistEnRoute,
		{model.LabOrderPhlebotomistEnRoute, model.LabOrderCollectSample}:         model.LabOrderSampleCollected,
		{model.LabOrderPhlebotomistAssigned, model.LabOrderFailCollection}:       model.LabOrderCollectionFailed,
		{model.LabOrderPhlebotomistEnRoute, model.LabOrderFailCollection}:        model.LabOrderCollectionFailed,
		{model.LabOrderSampleCollected, model.LabOrderDispatchSample}:            model.LabOrderSampleInTransit,
		{model.LabOrderSampleInTransit, model.LabOrderReceiveSample}:             model.LabOrderSampleReceived,
		{model.LabOrderSampleReceived, model.LabOrderStartProcessing}:            model.LabOrderProcessing,
		{model.LabOrderProcessing, model.LabOrderUploadResults}:                  model.LabOrderResultsUploaded,
		{model.LabOrderResultsUploaded, model.LabOrderReviewResults}:             model.LabOrderDoctorReviewed,
		{model.LabOrderDoctorReviewed, model.LabOrderClose}:                      model.LabOrderClosed,
	}
	terminal := map[model.LabOrderStatus]bool{
		model.LabOrderClosed: true, model.LabOrderCancelled: true, model.LabOrderExpired: true,
	}
	for _, s := range model.LabOrderStatuses {
		if terminal[s] {
			continue
		}
		g[labKey{s, model.LabOrderCancel}] = model.LabOrderCancelled
		g[labKey{s, model.LabOrderExpire}] = model.LabOrderExpired
	}
	return g
}

func satisfiedLabContext() LabContext {
	d := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return LabContext{
		BookedDate:     &d,
		BookedTimeSlot: "7:00-8:00",
		HasAssignee:    true,
		ResultFileURL:  "https://files.example.com/results/1.pdf",
	}
}

func TestLabOrderGraphIsExhaustive(t *testing.T) {
	expected := expectedLabGraph()
	ctx := satisfiedLabContext()

	for _, from := range model.LabOrderStatuses {
		for _, event := range model.LabOrderEvents {
			from, event := from, event
			t.Run(string(from)+"/"+string(event), func(t *testing.T) {
				want, legal := expected[labKey{from, event}]
				got, err := ValidateLabOrder(from, event, ctx)
				if legal {
					require.NoError(t, err)
					assert.Equal(t, want, got)
					return
				}
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidTransition))
				assert.Equal(t, from, got)
			})
		}
	}

	assert.Len(t, LabOrders().Edges(), len(expected))
}

func TestLabOrderPreconditions(t *testing.T) {
	tests := []struct {
		name  string
		from  model.LabOrderStatus
		event model.LabOrderEvent
		ctx   LabContext
	}{
		{"book without date", model.LabOrderOrdered, model.LabOrderBookSlot, LabContext{BookedTimeSlot: "7:00-8:00"}},
		{"assign before booking", model.LabOrderSlotBooked, model.LabOrderAssignPhlebotomist, LabContext{}},
		{"reassign without assignee", model.LabOrderPhlebotomistAssigned, model.LabOrderReassignPhlebotomist, LabContext{}},
		{"upload without url", model.LabOrderProcessing, model.LabOrderUploadResults, LabContext{}},
		{"review without url", model.LabOrderResultsUploaded, model.LabOrderReviewResults, LabContext{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateLabOrder(tt.from, tt.event, tt.ctx)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrPreconditionMissing))
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestTerminalLabStatesRejectEverything(t *testing.T) {
	for _, s := range []model.LabOrderStatus{model.LabOrderClosed, model.LabOrderCancelled, model.LabOrderExpired} {
		assert.True(t, LabOrders().IsTerminal(s))
		for _, ev := range model.LabOrderEvents {
			assert.False(t, LabOrders().Allowed(s, ev))
		}
	}
}

func TestValidateDispatchesByEntity(t *testing.T) {
	to, err := Validate(model.EntityLabOrder, string(model.LabOrderOrdered), string(model.LabOrderBookSlot), satisfiedLabContext())
	require.NoError(t, err)
	assert.Equal(t, string(model.LabOrderSlotBooked), to)

	_, err = Validate(model.EntityLabOrder, string(model.LabOrderOrdered), string(model.LabOrderBookSlot), PharmacyContext{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInternal))

	_, err = Validate(model.EntityType("SHIPMENT"), "A", "B", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}
