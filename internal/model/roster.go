package model

import (
	"time"

	"github.com/google/uuid"
)

// RosterItem is one collection on a phlebotomist's day. Never persisted.
type RosterItem struct {
	LabOrderID      uuid.UUID      `json:"lab_order_id"`
	ConsultationID  uuid.UUID      `json:"consultation_id"`
	Status          LabOrderStatus `json:"status"`
	PatientID       uuid.UUID      `json:"patient_id"`
	PatientName     string         `json:"patient_name"`
	PatientPhone    string         `json:"patient_phone"`
	Address         string         `json:"address"`
	Pincode         string         `json:"pincode"`
	Area            string         `json:"area"`
	TimeSlot        string         `json:"time_slot"`
	SlotStart       string         `json:"slot_start"`
	PanelName       string         `json:"panel_name"`
	TestPanel       []string       `json:"test_panel"`
	RequiresFasting bool           `json:"requires_fasting"`
}

type RosterGroup struct {
	Area  string       `json:"area"`
	Items []RosterItem `json:"items"`
}

type Roster struct {
	PhlebotomistID uuid.UUID     `json:"phlebotomist_id"`
	Date           string        `json:"date"`
	Groups         []RosterGroup `json:"groups"`
}

// Items flattens the roster in display order.
func (r *Roster) Items() []RosterItem {
	var out []RosterItem
	for _, g := range r.Groups {
		out = append(out, g.Items...)
	}
	return out
}

// QueueItem is a row on an operational queue.
type QueueItem struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	Status     string     `json:"status"`
	Pincode    string     `json:"pincode"`
	City       string     `json:"city"`
	Reason     string     `json:"reason,omitempty"`
	AssigneeID *uuid.UUID `json:"assignee_id,omitempty"`
	Since      time.Time  `json:"since"`
}

// CredentialAlert flags a phlebotomist whose credential is about to lapse.
type CredentialAlert struct {
	PartnerID        uuid.UUID `json:"partner_id"`
	Name             string    `json:"name"`
	CredentialExpiry time.Time `json:"credential_expiry"`
	DaysLeft         int       `json:"days_left"`
}
