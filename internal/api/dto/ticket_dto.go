package dto

import (
	"time"

	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TicketNumber   string               `json:"ticket_number,omitempty"`
	Organization   string               `json:"organization"`
	Status         domain.TicketStatus  `json:"status,omitempty"`
	ExpirationDate time.Time            `json:"expiration_date"`
	Location       string               `json:"location"`
	Coordinates    *domain.Coordinates  `json:"coordinates,omitempty"`
	AddressData    *domain.AddressData  `json:"address_data,omitempty"`
	Notes          string               `json:"notes,omitempty"`
	AssignedTo     string               `json:"assigned_to,omitempty"`
}

// UpdateTicketRequest payload; absent fields are untouched.
type UpdateTicketRequest struct {
	Organization   *string              `json:"organization,omitempty"`
	Location       *string              `json:"location,omitempty"`
	Notes          *string              `json:"notes,omitempty"`
	ExpirationDate *time.Time           `json:"expiration_date,omitempty"`
	Status         *domain.TicketStatus `json:"status,omitempty"`
	AssignedTo     *string              `json:"assigned_to,omitempty"`
	Coordinates    *domain.Coordinates  `json:"coordinates,omitempty"`
	AddressData    *domain.AddressData  `json:"address_data,omitempty"`
}

// RenewTicketRequest payload.
type RenewTicketRequest struct {
	Days int `json:"days,omitempty"`
}

// ImportTicketsRequest payload for bulk import.
type ImportTicketsRequest struct {
	Tickets           []ImportTicketItem `json:"tickets"`
	OverwriteExisting bool               `json:"overwrite_existing,omitempty"`
}

// ImportTicketItem is one bulk-import record.
type ImportTicketItem struct {
	TicketNumber   string              `json:"ticket_number"`
	Organization   string              `json:"organization"`
	Status         domain.TicketStatus `json:"status,omitempty"`
	ExpirationDate time.Time           `json:"expiration_date,omitempty"`
	Location       string              `json:"location,omitempty"`
	Coordinates    *domain.Coordinates `json:"coordinates,omitempty"`
	AddressData    *domain.AddressData `json:"address_data,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	AssignedTo     string              `json:"assigned_to,omitempty"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID             string              `json:"id"`
	TicketNumber   string              `json:"ticket_number"`
	Organization   string              `json:"organization"`
	Status         domain.TicketStatus `json:"status"`
	ExpirationDate time.Time           `json:"expiration_date"`
	Location       string              `json:"location"`
	Coordinates    *domain.Coordinates `json:"coordinates,omitempty"`
	AddressData    *domain.AddressData `json:"address_data,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	Renewals       []domain.Renewal    `json:"renewals"`
	AssignedTo     string              `json:"assigned_to"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// TicketPageResponse is a paginated listing.
type TicketPageResponse struct {
	Items    []TicketResponse `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// NumberCheckResponse reports ticket number availability.
type NumberCheckResponse struct {
	TicketNumber string `json:"ticket_number"`
	Available    bool   `json:"available"`
}

// TicketFromDomain maps a domain ticket onto the wire shape.
func TicketFromDomain(ticket *domain.Ticket) TicketResponse {
	renewals := ticket.Renewals
	if renewals == nil {
		renewals = []domain.Renewal{}
	}
	return TicketResponse{
		ID:             ticket.ID,
		TicketNumber:   ticket.TicketNumber,
		Organization:   ticket.Organization,
		Status:         ticket.Status,
		ExpirationDate: ticket.ExpirationDate,
		Location:       ticket.Location,
		Coordinates:    ticket.Coordinates,
		AddressData:    ticket.AddressData,
		Notes:          ticket.Notes,
		Renewals:       renewals,
		AssignedTo:     ticket.AssignedTo,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

// TicketPageFromDomain maps a service page onto the wire shape.
func TicketPageFromDomain(page *service.TicketPage) TicketPageResponse {
	items := make([]TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, TicketFromDomain(&page.Items[i]))
	}
	return TicketPageResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
}
