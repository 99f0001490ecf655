package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "sent"
	NotificationStatusFailed NotificationStatus = "failed"
)

type RecipientKind string

const (
	RecipientPatient    RecipientKind = "patient"
	RecipientDoctor     RecipientKind = "doctor"
	RecipientPartner    RecipientKind = "partner"
	RecipientOperations RecipientKind = "operations"
)

// Notification is one dispatch(eventType, recipient, payload) call.
type Notification struct {
	ID            uuid.UUID     `json:"id"`
	EventType     string        `json:"event_type"`
	RecipientID   uuid.UUID     `json:"recipient_id"`
	RecipientKind RecipientKind `json:"recipient_kind"`
	Channel       string        `json:"channel"`
	Subject       string        `json:"subject"`
	Content       string        `json:"content"`
	Recipient     string        `json:"recipient,omitempty"`
	Payload       JSONMap       `json:"payload,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
