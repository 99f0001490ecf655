package transition

import (
	"time"

	"github.com/jwalitptl/fulfillment-api/internal/model"
)

// LabContext carries the facts lab order guards look at.
type LabContext struct {
	BookedDate     *time.Time
	BookedTimeSlot string
	HasAssignee    bool
	ResultFileURL  string
}

// LabContextFor builds a context from the stored order.
func LabContextFor(o *model.LabOrder) LabContext {
	c := LabContext{
		BookedDate:  o.BookedDate,
		HasAssignee: o.PhlebotomistID != nil,
	}
	if o.BookedTimeSlot != nil {
		c.BookedTimeSlot = *o.BookedTimeSlot
	}
	if o.ResultFileURL != nil {
		c.ResultFileURL = *o.ResultFileURL
	}
	return c
}

func (c LabContext) booked() bool {
	return c.BookedDate != nil && c.BookedTimeSlot != ""
}

var labOrders = func() *Machine[model.LabOrderStatus, model.LabOrderEvent, LabContext] {
	m := newMachine[model.LabOrderStatus, model.LabOrderEvent, LabContext](
		model.EntityLabOrder,
		model.LabOrderClosed, model.LabOrderCancelled, model.LabOrderExpired,
	)

	m.edge(model.LabOrderBookSlot, model.LabOrderSlotBooked, model.LabOrderOrdered, model.LabOrderCollectionFailed).
		edge(model.LabOrderReschedule, model.LabOrderSlotBooked, model.LabOrderSlotBooked, model.LabOrderPhlebotomistAssigned).
		edge(model.LabOrderAssignPhlebotomist, model.LabOrderPhlebotomistAssigned, model.LabOrderSlotBooked).
		edge(model.LabOrderReassignPhlebotomist, model.LabOrderPhlebotomistAssigned, model.LabOrderPhlebotomistAssigned, model.LabOrderPhlebotomistEnRoute).
		edge(model.LabOrderStartRoute, model.LabOrderPhlebotomistEnRoute, model.LabOrderPhlebotomistAssigned).
		edge(model.LabOrderCollectSample, model.LabOrderSampleCollected, model.LabOrderPhlebotomistEnRoute).
		edge(model.LabOrderFailCollection, model.LabOrderCollectionFailed, model.LabOrderPhlebotomistAssigned, model.LabOrderPhlebotomistEnRoute).
		edge(model.LabOrderDispatchSample, model.LabOrderSampleInTransit, model.LabOrderSampleCollected).
		edge(model.LabOrderReceiveSample, model.LabOrderSampleReceived, model.LabOrderSampleInTransit).
		edge(model.LabOrderStartProcessing, model.LabOrderProcessing, model.LabOrderSampleReceived).
		edge(model.LabOrderUploadResults, model.LabOrderResultsUploaded, model.LabOrderProcessing).
		edge(model.LabOrderReviewResults, model.LabOrderDoctorReviewed, model.LabOrderResultsUploaded).
		edge(model.LabOrderClose, model.LabOrderClosed, model.LabOrderDoctorReviewed).
		fromAnyLive(model.LabOrderCancel, model.LabOrderCancelled, model.LabOrderStatuses).
		fromAnyLive(model.LabOrderExpire, model.LabOrderExpired, model.LabOrderStatuses)

	bookingRequired := func(c LabContext) error {
		return precondition(c.booked(), "booked date and time slot are required")
	}
	m.guard(model.LabOrderBookSlot, bookingRequired).
		guard(model.LabOrderReschedule, bookingRequired).
		guard(model.LabOrderAssignPhlebotomist, func(c LabContext) error {
			return precondition(c.booked(), "a slot must be booked before a phlebotomist can be assigned")
		}).
		guard(model.LabOrderReassignPhlebotomist, func(c LabContext) error {
			return precondition(c.HasAssignee, "order has no phlebotomist to reassign")
		}).
		guard(model.LabOrderStartRoute, func(c LabContext) error {
			return precondition(c.HasAssignee, "order has no assigned phlebotomist")
		}).
		guard(model.LabOrderUploadResults, func(c LabContext) error {
			return precondition(c.ResultFileURL != "", "result file url is required")
		}).
		guard(model.LabOrderReviewResults, func(c LabContext) error {
			return precondition(c.ResultFileURL != "", "results must be uploaded before review")
		})

	return m
}()

// LabOrders exposes the lab order graph for enumeration.
func LabOrders() *Machine[model.LabOrderStatus, model.LabOrderEvent, LabContext] {
	return labOrders
}

func ValidateLabOrder(from model.LabOrderStatus, event model.LabOrderEvent, ctx LabContext) (model.LabOrderStatus, error) {
	return labOrders.Validate(from, event, ctx)
}
