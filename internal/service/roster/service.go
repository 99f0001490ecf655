// Package roster builds the read-side views partners and operators work from.
package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	"github.com/jwalitptl/fulfillment-api/internal/service/cutoff"
)

// RosterStatuses are the lab order states a phlebotomist still has to act on.
var RosterStatuses = []model.LabOrderStatus{
	model.LabOrderPhlebotomistAssigned,
	model.LabOrderPhlebotomistEnRoute,
}

var (
	labQueueStatuses = []model.LabOrderStatus{
		model.LabOrderSampleInTransit,
		model.LabOrderSampleReceived,
		model.LabOrderProcessing,
	}
	pharmacyQueueStatuses = []model.PharmacyOrderStatus{
		model.PharmacySentToPharmacy,
		model.PharmacyAccepted,
		model.PharmacyPreparing,
		model.PharmacyReady,
		model.PharmacyPickupArranged,
		model.PharmacyOutForDelivery,
	}
)

// unknownSlot sorts after every real "HH:MM".
const unknownSlot = "99:99"

type Service struct {
	store repository.Store
}

func NewService(store repository.Store) *Service {
	return &Service{store: store}
}

// DailyRoster lists a phlebotomist's pending collections for one day, grouped by patient
// area. Items within a group are ordered by slot start; groups by their earliest slot and
// then by name.
func (s *Service) DailyRoster(ctx context.Context, phlebotomistID uuid.UUID, date time.Time) (*model.Roster, error) {
	day := model.DateOf(date)
	orders, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{
		PhlebotomistID: &phlebotomistID,
		BookedDate:     &day,
		Statuses:       RosterStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list roster orders: %w", err)
	}

	patientIDs := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		patientIDs = append(patientIDs, o.PatientID)
	}
	patients, err := s.store.Patients().GetSummaries(ctx, patientIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load patients: %w", err)
	}

	groups := make(map[string][]model.RosterItem)
	var areas []string
	for _, o := range orders {
		item := rosterItem(o, patients[o.PatientID])
		if _, seen := groups[item.Area]; !seen {
			areas = append(areas, item.Area)
		}
		groups[item.Area] = append(groups[item.Area], item)
	}

	roster := &model.Roster{
		PhlebotomistID: phlebotomistID,
		Date:           model.FormatDate(day),
		Groups:         make([]model.RosterGroup, 0, len(areas)),
	}
	for _, area := range areas {
		items := groups[area]
		sort.SliceStable(items, func(i, j int) bool {
			return sortKey(items[i]) < sortKey(items[j])
		})
		roster.Groups = append(roster.Groups, model.RosterGroup{Area: area, Items: items})
	}
	sort.SliceStable(roster.Groups, func(i, j int) bool {
		a, b := roster.Groups[i], roster.Groups[j]
		if first, second := sortKey(a.Items[0]), sortKey(b.Items[0]); first != second {
			return first < second
		}
		return a.Area < b.Area
	})
	return roster, nil
}

func rosterItem(o *model.LabOrder, patient *model.PatientSummary) model.RosterItem {
	item := model.RosterItem{
		LabOrderID:      o.ID,
		ConsultationID:  o.ConsultationID,
		Status:          o.Status,
		PatientID:       o.PatientID,
		Address:         o.CollectionAddress,
		Pincode:         o.Pincode,
		Area:            areaOf(o),
		PanelName:       o.PanelName,
		TestPanel:       []string(o.TestPanel),
		RequiresFasting: model.PanelRequiresFasting(o.TestPanel),
		SlotStart:       unknownSlot,
	}
	if o.BookedTimeSlot != nil {
		item.TimeSlot = *o.BookedTimeSlot
		if start, err := model.NormalizeSlotStart(*o.BookedTimeSlot); err == nil {
			item.SlotStart = start
		}
	}
	if patient != nil {
		item.PatientName = patient.Name
		item.PatientPhone = patient.Phone
	}
	return item
}

func areaOf(o *model.LabOrder) string {
	switch {
	case strings.TrimSpace(o.Area) != "":
		return strings.TrimSpace(o.Area)
	case o.Pincode != "":
		return o.Pincode
	default:
		return "Unspecified"
	}
}

func sortKey(item model.RosterItem) string {
	return item.SlotStart + "|" + item.LabOrderID.String()
}

// UnassignedQueue lists parked work and items waiting for operator intervention, oldest
// first.
func (s *Service) UnassignedQueue(ctx context.Context) ([]model.QueueItem, error) {
	var out []model.QueueItem

	booked, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{
		Unassigned: true,
		Statuses:   []model.LabOrderStatus{model.LabOrderSlotBooked},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned lab orders: %w", err)
	}
	for _, o := range booked {
		out = append(out, labQueueItem(o, "awaiting phlebotomist", o.PhlebotomistID))
	}

	collected, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{
		NoLab:    true,
		Statuses: []model.LabOrderStatus{model.LabOrderSampleCollected},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list samples without lab: %w", err)
	}
	for _, o := range collected {
		out = append(out, labQueueItem(o, "awaiting partner lab", o.PhlebotomistID))
	}

	pharmacy, err := s.store.PharmacyOrders().List(ctx, model.PharmacyOrderFilter{
		Statuses: []model.PharmacyOrderStatus{
			model.PharmacyPrescriptionCreated,
			model.PharmacyIssue,
			model.PharmacyDeliveryFailed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pharmacy exceptions: %w", err)
	}
	for _, o := range pharmacy {
		reason := "awaiting pharmacy"
		switch o.Status {
		case model.PharmacyIssue:
			reason = "pharmacy issue"
			if o.IssueReason != nil {
				reason = *o.IssueReason
			}
		case model.PharmacyDeliveryFailed:
			reason = "delivery failed"
		}
		out = append(out, pharmacyQueueItem(o, reason))
	}

	// Failed reassignments park an order that still carries its previous assignee.
	seen := make(map[uuid.UUID]bool, len(out))
	for _, item := range out {
		seen[item.EntityID] = true
	}
	parkedLabs, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{Parked: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list parked lab orders: %w", err)
	}
	for _, o := range parkedLabs {
		if !seen[o.ID] {
			out = append(out, labQueueItem(o, "awaiting reassignment", o.PhlebotomistID))
		}
	}
	parkedPharmacy, err := s.store.PharmacyOrders().List(ctx, model.PharmacyOrderFilter{Parked: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list parked pharmacy orders: %w", err)
	}
	for _, o := range parkedPharmacy {
		if !seen[o.ID] {
			out = append(out, pharmacyQueueItem(o, "awaiting reassignment"))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Since.Before(out[j].Since)
	})
	return out, nil
}

// PharmacyQueue lists the open orders one pharmacy is working on.
func (s *Service) PharmacyQueue(ctx context.Context, pharmacyID uuid.UUID) ([]model.QueueItem, error) {
	orders, err := s.store.PharmacyOrders().List(ctx, model.PharmacyOrderFilter{
		PharmacyID: &pharmacyID,
		Statuses:   pharmacyQueueStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pharmacy queue: %w", err)
	}
	out := make([]model.QueueItem, 0, len(orders))
	for _, o := range orders {
		out = append(out, pharmacyQueueItem(o, ""))
	}
	return out, nil
}

// LabQueue lists samples routed to one lab that have no results yet.
func (s *Service) LabQueue(ctx context.Context, labID uuid.UUID) ([]model.QueueItem, error) {
	orders, err := s.store.LabOrders().List(ctx, model.LabOrderFilter{
		LabID:    &labID,
		Statuses: labQueueStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list lab queue: %w", err)
	}
	out := make([]model.QueueItem, 0, len(orders))
	for _, o := range orders {
		out = append(out, labQueueItem(o, "", o.LabID))
	}
	return out, nil
}

// ExpiringCredentials reports phlebotomists whose credential lapses within the warning
// window. It never blocks assignment.
func (s *Service) ExpiringCredentials(ctx context.Context, now time.Time) ([]model.CredentialAlert, error) {
	partners, err := s.store.Partners().ListByKind(ctx, model.PartnerPhlebotomist)
	if err != nil {
		return nil, fmt.Errorf("failed to list phlebotomists: %w", err)
	}

	out := []model.CredentialAlert{}
	for _, p := range partners {
		if !cutoff.CredentialExpiringSoon(p, now) {
			continue
		}
		out = append(out, model.CredentialAlert{
			PartnerID:        p.ID,
			Name:             p.Name,
			CredentialExpiry: *p.CredentialExpiry,
			DaysLeft:         cutoff.DaysLeft(p, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CredentialExpiry.Before(out[j].CredentialExpiry)
	})
	return out, nil
}

func labQueueItem(o *model.LabOrder, reason string, assignee *uuid.UUID) model.QueueItem {
	since := o.UpdatedAt
	if o.ParkedAt != nil {
		since = *o.ParkedAt
		if o.ParkedReason != nil {
			reason = *o.ParkedReason
		}
	}
	return model.QueueItem{
		EntityType: model.EntityLabOrder,
		EntityID:   o.ID,
		Status:     string(o.Status),
		Pincode:    o.Pincode,
		City:       o.City,
		Reason:     reason,
		AssigneeID: assignee,
		Since:      since,
	}
}

func pharmacyQueueItem(o *model.PharmacyOrder, reason string) model.QueueItem {
	since := o.UpdatedAt
	if o.ParkedAt != nil {
		since = *o.ParkedAt
		if o.ParkedReason != nil && (o.Status == model.PharmacyPrescriptionCreated || o.Status == model.PharmacySentToPharmacy) {
			reason = *o.ParkedReason
		}
	}
	return model.QueueItem{
		EntityType: model.EntityPharmacyOrder,
		EntityID:   o.ID,
		Status:     string(o.Status),
		Pincode:    o.Pincode,
		City:       o.City,
		Reason:     reason,
		AssigneeID: o.PharmacyID,
		Since:      since,
	}
}
