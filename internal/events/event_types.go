package events

import (
	"time"

	"github.com/digsafe/permit-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventTicketRenewed EventType = "ticket_renewed"
	EventTicketClosed  EventType = "ticket_closed"
	EventTicketExpired EventType = "ticket_expired"
	EventTicketDeleted EventType = "ticket_deleted"
)

// Actor identifies who caused an event. UserID is empty for events emitted
// by the reconciliation engine.
type Actor struct {
	UserID string          `json:"user_id,omitempty"`
	Role   domain.UserRole `json:"role,omitempty"`
	System bool            `json:"system,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber   string    `json:"ticket_number"`
	Organization   string    `json:"organization"`
	AssignedTo     string    `json:"assigned_to"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// TicketRenewedPayload payload.
type TicketRenewedPayload struct {
	TicketNumber  string    `json:"ticket_number"`
	ExtendedBy    int       `json:"extended_by"`
	NewExpiration time.Time `json:"new_expiration"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	TicketNumber string `json:"ticket_number"`
}

// TicketExpiredPayload payload.
type TicketExpiredPayload struct {
	TicketNumber   string    `json:"ticket_number"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber string `json:"ticket_number"`
}

// SystemActor marks an event as produced by the reconciliation engine.
func SystemActor() Actor {
	return Actor{System: true}
}

// UserActor builds actor metadata from the acting user.
func UserActor(user *domain.User) Actor {
	if user == nil {
		return SystemActor()
	}
	return Actor{UserID: user.ID, Role: user.Role}
}
