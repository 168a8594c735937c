package dto

import (
	"time"

	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/service"
)

// AlertResponse is the wire representation of an alert.
type AlertResponse struct {
	ID        string               `json:"id"`
	TicketID  string               `json:"ticket_id"`
	Type      domain.AlertType     `json:"type"`
	Message   string               `json:"message"`
	Severity  domain.AlertSeverity `json:"severity"`
	IsRead    bool                 `json:"is_read"`
	CreatedAt time.Time            `json:"created_at"`
}

// AlertPageResponse is a paginated listing.
type AlertPageResponse struct {
	Items    []AlertResponse `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// SetAlertReadRequest payload.
type SetAlertReadRequest struct {
	IsRead bool `json:"is_read"`
}

// MarkAllReadResponse reports how many alerts were affected.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// AlertFromDomain maps a domain alert onto the wire shape.
func AlertFromDomain(alert *domain.Alert) AlertResponse {
	return AlertResponse{
		ID:        alert.ID,
		TicketID:  alert.TicketID,
		Type:      alert.Type,
		Message:   alert.Message,
		Severity:  alert.Severity,
		IsRead:    alert.IsRead,
		CreatedAt: alert.CreatedAt,
	}
}

// AlertPageFromDomain maps a service page onto the wire shape.
func AlertPageFromDomain(page *service.AlertPage) AlertPageResponse {
	items := make([]AlertResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, AlertFromDomain(&page.Items[i]))
	}
	return AlertPageResponse{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
}
