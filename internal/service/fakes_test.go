package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/repository"
)

func alertFilterByType(alertType domain.AlertType) repository.AlertFilter {
	return repository.AlertFilter{Type: &alertType}
}

func duplicateKeyError() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "tickets_ticket_number_key"}
}

// fakeTicketRepo mirrors the real store's contract: pgx.ErrNoRows for
// missing rows, a 23505 PgError for duplicate numbers, and version-checked
// updates.
type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	nextID  int
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	r := &fakeTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, t := range tickets {
		cp := *t
		if cp.Version == 0 {
			cp.Version = 1
		}
		r.tickets[cp.ID] = &cp
	}
	return r
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.TicketNumber == ticket.TicketNumber {
			return duplicateKeyError()
		}
	}
	r.nextID++
	ticket.ID = fmt.Sprintf("ticket-%d", r.nextID)
	ticket.Version = 1
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	cp := *ticket
	r.tickets[cp.ID] = &cp
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tickets[ticket.ID]
	if !ok || cur.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	cp := *ticket
	r.tickets[cp.ID] = &cp
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTicketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.TicketNumber == number {
			cp := *t
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if filter.AssigneeID != nil && t.AssignedTo != *filter.AssigneeID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Organization != nil && !strings.Contains(strings.ToLower(t.Organization), strings.ToLower(*filter.Organization)) {
			continue
		}
		if filter.TicketNumber != nil && t.TicketNumber != *filter.TicketNumber {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (r *fakeTicketRepo) CountWithFilter(ctx context.Context, filter repository.TicketFilter) (int64, error) {
	list, err := r.ListWithFilter(ctx, filter)
	return int64(len(list)), err
}

func (r *fakeTicketRepo) CountByStatus(_ context.Context, assigneeID *string) (map[domain.TicketStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.TicketStatus]int64)
	for _, t := range r.tickets {
		if assigneeID != nil && t.AssignedTo != *assigneeID {
			continue
		}
		counts[t.Status]++
	}
	return counts, nil
}

func (r *fakeTicketRepo) CountExpiringSoon(_ context.Context, assigneeID *string, now time.Time, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.tickets {
		if assigneeID != nil && t.AssignedTo != *assigneeID {
			continue
		}
		if t.Status == domain.TicketStatusOpen &&
			t.ExpirationDate.After(now) &&
			!t.ExpirationDate.After(now.Add(window)) {
			n++
		}
	}
	return n, nil
}

func (r *fakeTicketRepo) LastNumberWithPrefix(_ context.Context, prefix string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last string
	for _, t := range r.tickets {
		if strings.HasPrefix(t.TicketNumber, prefix+"-") && t.TicketNumber > last {
			last = t.TicketNumber
		}
	}
	return last, nil
}

func (r *fakeTicketRepo) FindExpiringSoon(_ context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	return nil, nil
}

func (r *fakeTicketRepo) FindExpired(_ context.Context, now time.Time) ([]domain.Ticket, error) {
	return nil, nil
}

// fakeAlertRepo is an in-memory AlertRepository.
type fakeAlertRepo struct {
	mu      sync.Mutex
	alerts  []*domain.Alert
	tickets *fakeTicketRepo
}

func newFakeAlertRepo(tickets *fakeTicketRepo) *fakeAlertRepo {
	return &fakeAlertRepo{tickets: tickets}
}

func (r *fakeAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert.ID = fmt.Sprintf("alert-%d", len(r.alerts)+1)
	alert.CreatedAt = time.Now()
	cp := *alert
	r.alerts = append(r.alerts, &cp)
	return nil
}

func (r *fakeAlertRepo) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeAlertRepo) ListWithFilter(ctx context.Context, filter repository.AlertFilter) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Alert
	for _, a := range r.alerts {
		if filter.TicketID != nil && a.TicketID != *filter.TicketID {
			continue
		}
		if filter.Type != nil && a.Type != *filter.Type {
			continue
		}
		if filter.UnreadOnly && a.IsRead {
			continue
		}
		if filter.AssigneeID != nil && !r.assignedTo(ctx, a.TicketID, *filter.AssigneeID) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *fakeAlertRepo) assignedTo(ctx context.Context, ticketID, assigneeID string) bool {
	if r.tickets == nil {
		return false
	}
	t, err := r.tickets.GetByID(ctx, ticketID)
	return err == nil && t.AssignedTo == assigneeID
}

func (r *fakeAlertRepo) CountWithFilter(ctx context.Context, filter repository.AlertFilter) (int64, error) {
	list, err := r.ListWithFilter(ctx, filter)
	return int64(len(list)), err
}

func (r *fakeAlertRepo) HasRecentExpiringAlert(_ context.Context, ticketID string, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.TicketID == ticketID && a.Type == domain.AlertTypeExpiringSoon && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAlertRepo) SetRead(_ context.Context, id string, read bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.ID == id {
			a.IsRead = read
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeAlertRepo) MarkAllRead(ctx context.Context, assigneeID *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.alerts {
		if a.IsRead {
			continue
		}
		if assigneeID != nil && !r.assignedTo(ctx, a.TicketID, *assigneeID) {
			continue
		}
		a.IsRead = true
		n++
	}
	return n, nil
}

func (r *fakeAlertRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.alerts {
		if a.ID == id {
			r.alerts = append(r.alerts[:i], r.alerts[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		cp := *u
		r.users[cp.ID] = &cp
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return duplicateKeyError()
		}
	}
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(r.users)+1)
	}
	cp := *user
	r.users[cp.ID] = &cp
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *user
	r.users[cp.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}
