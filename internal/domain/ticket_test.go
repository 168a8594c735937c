package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenewExtendsFromStoredExpiration(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expiration := now.AddDate(0, 0, 3)
	ticket := &Ticket{Status: TicketStatusOpen, ExpirationDate: expiration}

	require.NoError(t, ticket.Renew(now, 10))

	assert.Equal(t, expiration.AddDate(0, 0, 10), ticket.ExpirationDate)
	assert.Equal(t, TicketStatusOpen, ticket.Status)
	require.Len(t, ticket.Renewals, 1)
	assert.Equal(t, 10, ticket.Renewals[0].ExtendedBy)
	assert.Equal(t, now, ticket.Renewals[0].Date)
}

func TestRenewDefaultsToFifteenDays(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expiration := now.AddDate(0, 0, 5)
	ticket := &Ticket{Status: TicketStatusOpen, ExpirationDate: expiration}

	require.NoError(t, ticket.Renew(now, 0))

	assert.Equal(t, expiration.AddDate(0, 0, 15), ticket.ExpirationDate)
	require.Len(t, ticket.Renewals, 1)
	assert.Equal(t, 15, ticket.Renewals[0].ExtendedBy)
}

func TestRenewExpiredTicketReopens(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	// Long overdue: extension stays anchored on the old deadline, so the
	// result may still be in the past.
	expiration := now.AddDate(0, 0, -30)
	ticket := &Ticket{Status: TicketStatusExpired, ExpirationDate: expiration}

	require.NoError(t, ticket.Renew(now, 7))

	assert.Equal(t, expiration.AddDate(0, 0, 7), ticket.ExpirationDate)
	assert.Equal(t, TicketStatusOpen, ticket.Status)
	require.Len(t, ticket.Renewals, 1)
	assert.Equal(t, 7, ticket.Renewals[0].ExtendedBy)
}

func TestRenewClosedTicketRejected(t *testing.T) {
	ticket := &Ticket{Status: TicketStatusClosed, ExpirationDate: time.Now()}

	err := ticket.Renew(time.Now(), 5)

	assert.ErrorIs(t, err, ErrTicketClosed)
	assert.Empty(t, ticket.Renewals)
}

func TestCloseIsUnconditionalAndIdempotent(t *testing.T) {
	for _, status := range []TicketStatus{TicketStatusOpen, TicketStatusExpired, TicketStatusClosed} {
		ticket := &Ticket{Status: status}
		ticket.Close()
		assert.Equal(t, TicketStatusClosed, ticket.Status)
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		status     TicketStatus
		expiration time.Time
		want       bool
	}{
		{"open and future", TicketStatusOpen, now.Add(time.Hour), false},
		{"open but past deadline", TicketStatusOpen, now.Add(-time.Second), true},
		{"marked expired", TicketStatusExpired, now.Add(time.Hour), true},
		{"closed but past deadline", TicketStatusClosed, now.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{Status: tt.status, ExpirationDate: tt.expiration}
			assert.Equal(t, tt.want, ticket.IsExpired(now))
		})
	}
}

func TestDaysUntilExpiration(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		status     TicketStatus
		expiration time.Time
		want       int
	}{
		{"partial day rounds up", TicketStatusOpen, now.Add(30 * time.Hour), 2},
		{"exact day boundary", TicketStatusOpen, now.Add(48 * time.Hour), 2},
		{"under a day", TicketStatusOpen, now.Add(5 * time.Hour), 1},
		{"past deadline floors at zero", TicketStatusOpen, now.Add(-time.Hour), 0},
		{"expired always zero", TicketStatusExpired, now.Add(72 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{Status: tt.status, ExpirationDate: tt.expiration}
			assert.Equal(t, tt.want, ticket.DaysUntilExpiration(now))
		})
	}
}

func TestTicketNumberHelpers(t *testing.T) {
	assert.Equal(t, "TKT-2024", TicketNumberPrefix(2024))
	assert.Equal(t, "TKT-2024-0007", FormatTicketNumber(2024, 7))
	assert.Equal(t, "TKT-2024-0001", FormatTicketNumber(2024, 1))

	seq, ok := ParseTicketSequence("TKT-2024-0015")
	require.True(t, ok)
	assert.Equal(t, 15, seq)

	_, ok = ParseTicketSequence("bogus")
	assert.False(t, ok)

	assert.Equal(t, "TKT-2024-0001", NormalizeTicketNumber("  tkt-2024-0001 "))
}
