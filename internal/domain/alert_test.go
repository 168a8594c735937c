package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewExpirationAlertClassification(t *testing.T) {
	tests := []struct {
		name         string
		hours        float64
		wantType     AlertType
		wantSeverity AlertSeverity
		wantMessage  string
	}{
		{
			name:         "already past",
			hours:        0,
			wantType:     AlertTypeExpired,
			wantSeverity: AlertSeverityCritical,
			wantMessage:  "Ticket has expired and been automatically marked as expired",
		},
		{
			name:         "negative hours",
			hours:        -3.5,
			wantType:     AlertTypeExpired,
			wantSeverity: AlertSeverityCritical,
			wantMessage:  "Ticket has expired and been automatically marked as expired",
		},
		{
			name:         "ten hours out",
			hours:        10,
			wantType:     AlertTypeExpiringSoon,
			wantSeverity: AlertSeverityHigh,
			wantMessage:  "Ticket will expire in 10 hours",
		},
		{
			name:         "boundary at 24 hours",
			hours:        24,
			wantType:     AlertTypeExpiringSoon,
			wantSeverity: AlertSeverityHigh,
			wantMessage:  "Ticket will expire in 24 hours",
		},
		{
			name:         "thirty hours rounds up to two days",
			hours:        30,
			wantType:     AlertTypeExpiringSoon,
			wantSeverity: AlertSeverityMedium,
			wantMessage:  "Ticket will expire in 2 days",
		},
		{
			name:         "just over a day",
			hours:        24.5,
			wantType:     AlertTypeExpiringSoon,
			wantSeverity: AlertSeverityMedium,
			wantMessage:  "Ticket will expire in 2 days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := NewExpirationAlert("ticket-1", tt.hours)
			assert.Equal(t, "ticket-1", alert.TicketID)
			assert.Equal(t, tt.wantType, alert.Type)
			assert.Equal(t, tt.wantSeverity, alert.Severity)
			assert.Equal(t, tt.wantMessage, alert.Message)
			assert.False(t, alert.IsRead)
		})
	}
}

func TestNewRenewalAlert(t *testing.T) {
	expiration := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	alert := NewRenewalAlert("ticket-2", 15, expiration)

	assert.Equal(t, AlertTypeRenewed, alert.Type)
	assert.Equal(t, AlertSeverityLow, alert.Severity)
	assert.Equal(t, "Ticket renewed for 15 days. New expiration: 2024-07-15", alert.Message)
}

func TestNewClosureAlert(t *testing.T) {
	alert := NewClosureAlert("ticket-3")

	assert.Equal(t, AlertTypeClosed, alert.Type)
	assert.Equal(t, AlertSeverityLow, alert.Severity)
	assert.Equal(t, "Ticket has been closed", alert.Message)
}
