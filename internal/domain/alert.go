package domain

import (
	"fmt"
	"math"
	"time"
)

// AlertType enumerates lifecycle events an alert can record.
type AlertType string

const (
	AlertTypeExpiringSoon AlertType = "expiring_soon"
	AlertTypeExpired      AlertType = "expired"
	AlertTypeRenewed      AlertType = "renewed"
	AlertTypeClosed       AlertType = "closed"
)

// AlertSeverity enumerates alert urgency levels.
type AlertSeverity string

const (
	AlertSeverityLow      AlertSeverity = "low"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is a generated notification record tied to a ticket lifecycle event.
// Immutable after creation except for the IsRead flag.
type Alert struct {
	ID        string
	TicketID  string
	Type      AlertType
	Message   string
	Severity  AlertSeverity
	IsRead    bool
	CreatedAt time.Time
}

// NewExpirationAlert classifies an expiration notice by the hours remaining:
// past-due tickets get a critical expired alert, tickets inside 24 hours a
// high expiring_soon alert stating whole hours, and anything further out a
// medium expiring_soon alert stating ceil(hours/24) days.
func NewExpirationAlert(ticketID string, hoursUntilExpiration float64) *Alert {
	alert := &Alert{TicketID: ticketID}
	switch {
	case hoursUntilExpiration <= 0:
		alert.Type = AlertTypeExpired
		alert.Severity = AlertSeverityCritical
		alert.Message = "Ticket has expired and been automatically marked as expired"
	case hoursUntilExpiration <= 24:
		alert.Type = AlertTypeExpiringSoon
		alert.Severity = AlertSeverityHigh
		alert.Message = fmt.Sprintf("Ticket will expire in %d hours", int(hoursUntilExpiration))
	default:
		alert.Type = AlertTypeExpiringSoon
		alert.Severity = AlertSeverityMedium
		alert.Message = fmt.Sprintf("Ticket will expire in %d days", int(math.Ceil(hoursUntilExpiration/24)))
	}
	return alert
}

// NewRenewalAlert records an interactive renewal.
func NewRenewalAlert(ticketID string, days int, newExpiration time.Time) *Alert {
	return &Alert{
		TicketID: ticketID,
		Type:     AlertTypeRenewed,
		Severity: AlertSeverityLow,
		Message:  fmt.Sprintf("Ticket renewed for %d days. New expiration: %s", days, newExpiration.Format("2006-01-02")),
	}
}

// NewClosureAlert records an interactive closure.
func NewClosureAlert(ticketID string) *Alert {
	return &Alert{
		TicketID: ticketID,
		Type:     AlertTypeClosed,
		Severity: AlertSeverityLow,
		Message:  "Ticket has been closed",
	}
}

// ValidAlertType reports whether t is a known alert type.
func ValidAlertType(t AlertType) bool {
	switch t {
	case AlertTypeExpiringSoon, AlertTypeExpired, AlertTypeRenewed, AlertTypeClosed:
		return true
	}
	return false
}
