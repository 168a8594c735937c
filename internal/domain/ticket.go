package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for permit tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "Open"
	TicketStatusClosed  TicketStatus = "Closed"
	TicketStatusExpired TicketStatus = "Expired"
)

// DefaultRenewalDays is the extension applied when a renewal omits the day count.
const DefaultRenewalDays = 15

// ErrTicketClosed is returned when a closed ticket is renewed.
var ErrTicketClosed = errors.New("closed tickets cannot be renewed")

// Renewal records a single expiration extension. The renewals list is
// append-only; entries are never mutated or pruned.
type Renewal struct {
	Date       time.Time `json:"date"`
	ExtendedBy int       `json:"extended_by"`
}

// Coordinates carries optional geo data for display purposes.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AddressData carries optional resolved address details for display purposes.
type AddressData struct {
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zip,omitempty"`
	FullAddress string `json:"full_address,omitempty"`
}

// Ticket is the aggregate for underground-utility work permits.
type Ticket struct {
	ID             string
	TicketNumber   string
	Organization   string
	Status         TicketStatus
	ExpirationDate time.Time
	Location       string
	Coordinates    *Coordinates
	AddressData    *AddressData
	Notes          string
	Renewals       []Renewal
	AssignedTo     string
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Renew extends the expiration date by days and records the extension.
// The extension is always relative to the stored expiration date, even when
// that date is already in the past; renewing a long-overdue ticket therefore
// does not reset the clock to now+days. An expired ticket becomes Open again.
func (t *Ticket) Renew(now time.Time, days int) error {
	if t.Status == TicketStatusClosed {
		return ErrTicketClosed
	}
	if days <= 0 {
		days = DefaultRenewalDays
	}
	t.ExpirationDate = t.ExpirationDate.AddDate(0, 0, days)
	t.Renewals = append(t.Renewals, Renewal{Date: now, ExtendedBy: days})
	if t.Status == TicketStatusExpired {
		t.Status = TicketStatusOpen
	}
	return nil
}

// Close marks the ticket Closed. Closing is unconditional and idempotent.
func (t *Ticket) Close() {
	t.Status = TicketStatusClosed
}

// Expire marks the ticket Expired. Only the reconciliation pass calls this.
func (t *Ticket) Expire() {
	t.Status = TicketStatusExpired
}

// IsExpired reports whether the ticket is past its deadline or already
// marked Expired. Display-only; it does not trigger a transition.
func (t *Ticket) IsExpired(now time.Time) bool {
	return t.Status == TicketStatusExpired || now.After(t.ExpirationDate)
}

// DaysUntilExpiration returns the whole days remaining, floored at zero.
func (t *Ticket) DaysUntilExpiration(now time.Time) int {
	if t.Status == TicketStatusExpired {
		return 0
	}
	remaining := t.ExpirationDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// HoursUntilExpiration returns the fractional hours remaining; negative when past.
func (t *Ticket) HoursUntilExpiration(now time.Time) float64 {
	return t.ExpirationDate.Sub(now).Hours()
}

// ValidTicketStatus reports whether s is a known status value.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusClosed, TicketStatusExpired:
		return true
	}
	return false
}

// TicketNumberPrefix returns the per-year number prefix, e.g. "TKT-2024".
func TicketNumberPrefix(year int) string {
	return fmt.Sprintf("TKT-%d", year)
}

// FormatTicketNumber builds a zero-padded ticket number, e.g. "TKT-2024-0007".
func FormatTicketNumber(year, sequence int) string {
	return fmt.Sprintf("%s-%04d", TicketNumberPrefix(year), sequence)
}

// ParseTicketSequence extracts the numeric sequence from a ticket number.
func ParseTicketSequence(number string) (int, bool) {
	parts := strings.Split(number, "-")
	if len(parts) != 3 {
		return 0, false
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return seq, true
}

// NormalizeTicketNumber uppercases and trims a caller-supplied number.
func NormalizeTicketNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
