package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/repository"
)

// memTicketRepo is an in-memory TicketRepository with the same optimistic
// concurrency behavior as the real store. failNext makes the next write
// fail once, for exercising the retry path.
type memTicketRepo struct {
	mu           sync.Mutex
	tickets      map[string]*domain.Ticket
	failNext     int
	conflictNext int
	updates      int
}

func newMemTicketRepo(tickets ...*domain.Ticket) *memTicketRepo {
	r := &memTicketRepo{tickets: make(map[string]*domain.Ticket)}
	for _, t := range tickets {
		cp := *t
		if cp.Version == 0 {
			cp.Version = 1
		}
		r.tickets[cp.ID] = &cp
	}
	return r
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.TicketNumber == ticket.TicketNumber {
			return fmt.Errorf("duplicate ticket number %s", ticket.TicketNumber)
		}
	}
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("ticket-%d", len(r.tickets)+1)
	}
	ticket.Version = 1
	cp := *ticket
	r.tickets[cp.ID] = &cp
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.failNext > 0 {
		r.failNext--
		return fmt.Errorf("store unavailable")
	}
	if r.conflictNext > 0 {
		r.conflictNext--
		return repository.ErrVersionConflict
	}
	cur, ok := r.tickets[ticket.ID]
	if !ok || cur.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	cp := *ticket
	r.tickets[cp.ID] = &cp
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (r *memTicketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tickets {
		if t.TicketNumber == number {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("ticket %s not found", number)
}

func (r *memTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tickets, id)
	return nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
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
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (r *memTicketRepo) CountWithFilter(ctx context.Context, filter repository.TicketFilter) (int64, error) {
	list, err := r.ListWithFilter(ctx, filter)
	return int64(len(list)), err
}

func (r *memTicketRepo) CountByStatus(_ context.Context, assigneeID *string) (map[domain.TicketStatus]int64, error) {
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

func (r *memTicketRepo) CountExpiringSoon(_ context.Context, assigneeID *string, now time.Time, window time.Duration) (int64, error) {
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

func (r *memTicketRepo) LastNumberWithPrefix(_ context.Context, prefix string) (string, error) {
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

func (r *memTicketRepo) FindExpiringSoon(_ context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == domain.TicketStatusOpen &&
			t.ExpirationDate.After(now) &&
			!t.ExpirationDate.After(now.Add(window)) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

func (r *memTicketRepo) FindExpired(_ context.Context, now time.Time) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == domain.TicketStatusOpen && t.ExpirationDate.Before(now) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNumber < out[j].TicketNumber })
	return out, nil
}

// memAlertRepo is an in-memory AlertRepository.
type memAlertRepo struct {
	mu       sync.Mutex
	alerts   []*domain.Alert
	failNext int
}

func newMemAlertRepo() *memAlertRepo {
	return &memAlertRepo{}
}

func (r *memAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return fmt.Errorf("store unavailable")
	}
	alert.ID = fmt.Sprintf("alert-%d", len(r.alerts)+1)
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	cp := *alert
	r.alerts = append(r.alerts, &cp)
	return nil
}

func (r *memAlertRepo) GetByID(_ context.Context, id string) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("alert %s not found", id)
}

func (r *memAlertRepo) ListWithFilter(_ context.Context, filter repository.AlertFilter) ([]domain.Alert, error) {
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
		out = append(out, *a)
	}
	return out, nil
}

func (r *memAlertRepo) CountWithFilter(ctx context.Context, filter repository.AlertFilter) (int64, error) {
	list, err := r.ListWithFilter(ctx, filter)
	return int64(len(list)), err
}

func (r *memAlertRepo) HasRecentExpiringAlert(_ context.Context, ticketID string, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.TicketID == ticketID && a.Type == domain.AlertTypeExpiringSoon && !a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAlertRepo) SetRead(_ context.Context, id string, read bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if a.ID == id {
			a.IsRead = read
			return nil
		}
	}
	return fmt.Errorf("alert %s not found", id)
}

func (r *memAlertRepo) MarkAllRead(_ context.Context, _ *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.alerts {
		if !a.IsRead {
			a.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memAlertRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.alerts {
		if a.ID == id {
			r.alerts = append(r.alerts[:i], r.alerts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("alert %s not found", id)
}
