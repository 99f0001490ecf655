package transition

import (
	"github.com/jwalitptl/fulfillment-api/internal/model"
)

type PharmacyContext struct {
	HasPharmacy bool
	// HasDeliveryPerson is true when the order already stores one or the command supplies one.
	HasDeliveryPerson bool
}

func PharmacyContextFor(o *model.PharmacyOrder) PharmacyContext {
	return PharmacyContext{
		HasPharmacy:       o.PharmacyID != nil,
		HasDeliveryPerson: o.HasDeliveryPerson(),
	}
}

var pharmacyOrders = func() *Machine[model.PharmacyOrderStatus, model.PharmacyOrderEvent, PharmacyContext] {
	m := newMachine[model.PharmacyOrderStatus, model.PharmacyOrderEvent, PharmacyContext](
		model.EntityPharmacyOrder,
		model.PharmacyDelivered, model.PharmacyCancelled, model.PharmacyReturned,
	)

	m.edge(model.PharmacySendToPharmacy, model.PharmacySentToPharmacy, model.PharmacyPrescriptionCreated).
		edge(model.PharmacyAccept, model.PharmacyAccepted, model.PharmacySentToPharmacy).
		edge(model.PharmacyStartPreparing, model.PharmacyPreparing, model.PharmacyAccepted).
		edge(model.PharmacyMarkReady, model.PharmacyReady, model.PharmacyPreparing).
		edge(model.PharmacyArrangePickup, model.PharmacyPickupArranged, model.PharmacyReady).
		edge(model.PharmacyDispatch, model.PharmacyOutForDelivery, model.PharmacyReady, model.PharmacyPickupArranged).
		edge(model.PharmacyDeliver, model.PharmacyDelivered, model.PharmacyOutForDelivery).
		edge(model.PharmacyReportIssue, model.PharmacyIssue,
			model.PharmacySentToPharmacy, model.PharmacyAccepted, model.PharmacyPreparing, model.PharmacyReady).
		edge(model.PharmacyFailDelivery, model.PharmacyDeliveryFailed, model.PharmacyPickupArranged, model.PharmacyOutForDelivery).
		edge(model.PharmacyReassignPharmacy, model.PharmacySentToPharmacy, model.PharmacyIssue, model.PharmacySentToPharmacy).
		edge(model.PharmacyRearrangeDelivery, model.PharmacyPickupArranged, model.PharmacyDeliveryFailed).
		fromAnyLive(model.PharmacyCancel, model.PharmacyCancelled, model.PharmacyOrderStatuses).
		fromAnyLive(model.PharmacyReturn, model.PharmacyReturned, model.PharmacyOrderStatuses)

	deliveryPerson := func(c PharmacyContext) error {
		return precondition(c.HasDeliveryPerson, "delivery person name and phone are required")
	}
	pharmacyAssigned := func(c PharmacyContext) error {
		return precondition(c.HasPharmacy, "order has no assigned pharmacy")
	}
	m.guard(model.PharmacyArrangePickup, deliveryPerson).
		guard(model.PharmacyDispatch, deliveryPerson).
		guard(model.PharmacyRearrangeDelivery, deliveryPerson).
		guard(model.PharmacyAccept, pharmacyAssigned).
		guard(model.PharmacyReassignPharmacy, pharmacyAssigned)

	return m
}()

func PharmacyOrders() *Machine[model.PharmacyOrderStatus, model.PharmacyOrderEvent, PharmacyContext] {
	return pharmacyOrders
}

func ValidatePharmacyOrder(from model.PharmacyOrderStatus, event model.PharmacyOrderEvent, ctx PharmacyContext) (model.PharmacyOrderStatus, error) {
	return pharmacyOrders.Validate(from, event, ctx)
}
