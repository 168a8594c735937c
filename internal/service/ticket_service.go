package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/digsafe/permit-service/internal/cache"
	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/events"
	"github.com/digsafe/permit-service/internal/repository"
	apperrors "github.com/digsafe/permit-service/pkg/util"
)

const (
	statsCacheTTL       = 30 * time.Second
	statsKeyAdmin       = "stats:admin"
	statsKeyUserPrefix  = "stats:user:"
	expiringSoonWindow  = 48 * time.Hour
	maxNumberGenRetries = 3
)

// TicketService coordinates permit ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	alerts     repository.AlertRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	cache      *cache.Cache
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	AlertRepo  repository.AlertRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Cache      *cache.Cache
	Logger     *zap.Logger
	Clock      func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	TicketNumber   string
	Organization   string
	Status         domain.TicketStatus
	ExpirationDate time.Time
	Location       string
	Coordinates    *domain.Coordinates
	AddressData    *domain.AddressData
	Notes          string
	AssignedTo     string
}

// TicketUpdateInput describes a partial update; nil fields are untouched.
type TicketUpdateInput struct {
	Organization   *string
	Location       *string
	Notes          *string
	ExpirationDate *time.Time
	Status         *domain.TicketStatus
	AssignedTo     *string
	Coordinates    *domain.Coordinates
	AddressData    *domain.AddressData
}

// TicketListInput describes listing filters.
type TicketListInput struct {
	Status       *domain.TicketStatus
	Organization *string
	TicketNumber *string
	AssigneeID   *string
	SortBy       repository.TicketSortField
	SortDesc     bool
	Page         int
	PageSize     int
}

// TicketPage is a paginated listing result.
type TicketPage struct {
	Items    []domain.Ticket
	Total    int64
	Page     int
	PageSize int
}

// TicketStats aggregates counts by status plus the expiring-soon count.
type TicketStats struct {
	Total        int64 `json:"total"`
	Open         int64 `json:"open"`
	Closed       int64 `json:"closed"`
	Expired      int64 `json:"expired"`
	ExpiringSoon int64 `json:"expiring_soon"`
}

// TicketImportItem is one record of a bulk import.
type TicketImportItem struct {
	TicketNumber   string
	Organization   string
	Status         domain.TicketStatus
	ExpirationDate time.Time
	Location       string
	Coordinates    *domain.Coordinates
	AddressData    *domain.AddressData
	Notes          string
	AssignedTo     string
}

// ImportResult records the outcome for one imported ticket number.
type ImportResult struct {
	TicketNumber string `json:"ticket_number"`
	Action       string `json:"action,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ImportSummary aggregates bulk import outcomes.
type ImportSummary struct {
	Imported   []ImportResult `json:"imported"`
	Duplicates []ImportResult `json:"duplicates"`
	Errors     []ImportResult `json:"errors"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		alerts:     deps.AlertRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		logger:     logger,
		now:        now,
	}
}

// CreateTicket creates a ticket on behalf of the acting user. Contractors
// are always assigned the ticket themselves regardless of the requested
// assignee; admins may assign to any active user.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}
	if strings.TrimSpace(input.Organization) == "" {
		return nil, apperrors.NewValidationError("organization is required", nil)
	}
	if strings.TrimSpace(input.Location) == "" {
		return nil, apperrors.NewValidationError("location is required", nil)
	}
	now := s.now()
	if input.ExpirationDate.IsZero() {
		return nil, apperrors.NewValidationError("expiration date is required", nil)
	}
	if !input.ExpirationDate.After(now) {
		return nil, apperrors.NewValidationError("expiration date must be in the future", nil)
	}

	status := input.Status
	if status == "" {
		status = domain.TicketStatusOpen
	}
	if !domain.ValidTicketStatus(status) {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}

	assignee, err := s.ResolveAssignee(ctx, actor, input.AssignedTo)
	if err != nil {
		return nil, err
	}

	manualNumber := domain.NormalizeTicketNumber(input.TicketNumber)

	ticket := &domain.Ticket{
		Organization:   strings.TrimSpace(input.Organization),
		Status:         status,
		ExpirationDate: input.ExpirationDate,
		Location:       strings.TrimSpace(input.Location),
		Coordinates:    input.Coordinates,
		AddressData:    input.AddressData,
		Notes:          strings.TrimSpace(input.Notes),
		Renewals:       []domain.Renewal{},
		AssignedTo:     assignee,
	}

	// The number generator reads the current maximum and increments, which
	// races under concurrent creation; the unique constraint is the safety
	// net, so retry with a fresh number on duplicate key.
	for attempt := 0; ; attempt++ {
		if manualNumber != "" {
			ticket.TicketNumber = manualNumber
		} else {
			number, err := s.GenerateTicketNumber(ctx)
			if err != nil {
				return nil, apperrors.MapError(err)
			}
			ticket.TicketNumber = number
		}

		err := s.tickets.Create(ctx, ticket)
		if err == nil {
			break
		}
		if apperrors.IsUniqueViolation(err) {
			if manualNumber != "" {
				return nil, apperrors.NewConflict("ticket number already exists", map[string]any{"ticket_number": manualNumber})
			}
			if attempt < maxNumberGenRetries-1 {
				continue
			}
			return nil, apperrors.NewConflict("could not allocate a unique ticket number", nil)
		}
		return nil, apperrors.MapError(err)
	}

	s.invalidateStats(ctx, ticket.AssignedTo)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.UserActor(actor),
		Payload: events.TicketCreatedPayload{
			TicketNumber:   ticket.TicketNumber,
			Organization:   ticket.Organization,
			AssignedTo:     ticket.AssignedTo,
			ExpirationDate: ticket.ExpirationDate,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket enforcing contractor ownership.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, id string) (*domain.Ticket, error) {
	ticket, err := s.loadOwned(ctx, actor, id, "access")
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateTicket applies a partial update. Contractors may only touch their
// own tickets; reassignment is admin-only and validates the target user.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, id string, patch TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.loadOwned(ctx, actor, id, "update")
	if err != nil {
		return nil, err
	}

	previousAssignee := ticket.AssignedTo
	if patch.AssignedTo != nil && actor.Role == domain.UserRoleAdmin {
		assignee, err := s.validateAssignee(ctx, *patch.AssignedTo)
		if err != nil {
			return nil, err
		}
		ticket.AssignedTo = assignee
	}
	if patch.Organization != nil {
		ticket.Organization = strings.TrimSpace(*patch.Organization)
	}
	if patch.Location != nil {
		ticket.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.Notes != nil {
		ticket.Notes = strings.TrimSpace(*patch.Notes)
	}
	if patch.ExpirationDate != nil {
		ticket.ExpirationDate = *patch.ExpirationDate
	}
	if patch.Coordinates != nil {
		ticket.Coordinates = patch.Coordinates
	}
	if patch.AddressData != nil {
		ticket.AddressData = patch.AddressData
	}
	if patch.Status != nil {
		if !domain.ValidTicketStatus(*patch.Status) {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *patch.Status})
		}
		ticket.Status = *patch.Status
	}

	if err := s.persist(ctx, ticket); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx, previousAssignee, ticket.AssignedTo)
	return ticket, nil
}

// RenewTicket extends the expiration date and records the renewal. A
// renewed alert is created after the state write succeeds.
func (s *TicketService) RenewTicket(ctx context.Context, actor *domain.User, id string, days int) (*domain.Ticket, error) {
	ticket, err := s.loadOwned(ctx, actor, id, "renew")
	if err != nil {
		return nil, err
	}

	effectiveDays := days
	if effectiveDays <= 0 {
		effectiveDays = domain.DefaultRenewalDays
	}

	if err := ticket.Renew(s.now(), days); err != nil {
		if errors.Is(err, domain.ErrTicketClosed) {
			return nil, apperrors.NewValidationError("closed tickets cannot be renewed", nil)
		}
		return nil, apperrors.MapError(err)
	}

	if err := s.persist(ctx, ticket); err != nil {
		return nil, err
	}

	alert := domain.NewRenewalAlert(ticket.ID, effectiveDays, ticket.ExpirationDate)
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.invalidateStats(ctx, ticket.AssignedTo)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketRenewed,
		TicketID: ticket.ID,
		Actor:    events.UserActor(actor),
		Payload: events.TicketRenewedPayload{
			TicketNumber:  ticket.TicketNumber,
			ExtendedBy:    effectiveDays,
			NewExpiration: ticket.ExpirationDate,
		},
	})
	return ticket, nil
}

// CloseTicket marks the ticket Closed and records a closure alert.
func (s *TicketService) CloseTicket(ctx context.Context, actor *domain.User, id string) (*domain.Ticket, error) {
	ticket, err := s.loadOwned(ctx, actor, id, "close")
	if err != nil {
		return nil, err
	}

	ticket.Close()
	if err := s.persist(ctx, ticket); err != nil {
		return nil, err
	}

	alert := domain.NewClosureAlert(ticket.ID)
	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.invalidateStats(ctx, ticket.AssignedTo)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    events.UserActor(actor),
		Payload:  events.TicketClosedPayload{TicketNumber: ticket.TicketNumber},
	})
	return ticket, nil
}

// DeleteTicket removes a ticket permanently. Admin only; the store cascades
// the ticket's alerts.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.User, id string) error {
	if actor == nil || actor.Role != domain.UserRoleAdmin {
		return apperrors.NewForbidden("only admins can delete tickets")
	}

	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return apperrors.MapError(err)
	}

	if err := s.tickets.Delete(ctx, id); err != nil {
		return apperrors.MapError(err)
	}

	s.invalidateStats(ctx, ticket.AssignedTo)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    events.UserActor(actor),
		Payload:  events.TicketDeletedPayload{TicketNumber: ticket.TicketNumber},
	})
	return nil
}

// ListTickets returns a page of tickets. Contractors always see only their
// own tickets regardless of the requested assignee filter.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, input TicketListInput) (*TicketPage, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	filter := repository.TicketFilter{
		Status:       input.Status,
		Organization: input.Organization,
		TicketNumber: input.TicketNumber,
		AssigneeID:   input.AssigneeID,
		SortBy:       input.SortBy,
		SortDesc:     input.SortDesc,
		Limit:        pageSize,
		Offset:       (page - 1) * pageSize,
	}
	if actor.Role == domain.UserRoleContractor {
		id := actor.ID
		filter.AssigneeID = &id
	}

	items, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total, err := s.tickets.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetStats returns ticket counts scoped to the acting user's visibility.
// Results are cached briefly per scope.
func (s *TicketService) GetStats(ctx context.Context, actor *domain.User) (*TicketStats, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}

	var assignee *string
	key := statsKeyAdmin
	if actor.Role == domain.UserRoleContractor {
		id := actor.ID
		assignee = &id
		key = statsKeyUserPrefix + id
	}

	if s.cache != nil {
		if cached, ok, err := cache.GetJSON[TicketStats](ctx, s.cache, key); err == nil && ok {
			return &cached, nil
		}
		result, err := s.cache.Once(key, func() (interface{}, error) {
			stats, err := s.computeStats(ctx, assignee)
			if err != nil {
				return nil, err
			}
			if err := cache.SetJSON(ctx, s.cache, key, stats, statsCacheTTL); err != nil {
				s.logger.Warn("stats cache write failed", zap.Error(err))
			}
			return stats, nil
		})
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		stats := result.(*TicketStats)
		return stats, nil
	}

	stats, err := s.computeStats(ctx, assignee)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return stats, nil
}

// GenerateTicketNumber allocates the next number for the current year:
// the highest existing sequence for the year prefix plus one, zero-padded
// to four digits, starting at 0001.
func (s *TicketService) GenerateTicketNumber(ctx context.Context) (string, error) {
	year := s.now().Year()
	prefix := domain.TicketNumberPrefix(year)

	last, err := s.tickets.LastNumberWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}

	sequence := 1
	if last != "" {
		if n, ok := domain.ParseTicketSequence(last); ok {
			sequence = n + 1
		}
	}
	return domain.FormatTicketNumber(year, sequence), nil
}

// CheckTicketNumber reports whether a number is already taken.
func (s *TicketService) CheckTicketNumber(ctx context.Context, number string) (bool, error) {
	_, err := s.tickets.GetByNumber(ctx, domain.NormalizeTicketNumber(number))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.MapError(err)
	}
	return true, nil
}

// ImportTickets bulk-creates or updates tickets from pre-parsed records.
// Individual failures are collected, never abort the batch.
func (s *TicketService) ImportTickets(ctx context.Context, actor *domain.User, items []TicketImportItem, overwriteExisting bool) (*ImportSummary, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}

	summary := &ImportSummary{
		Imported:   []ImportResult{},
		Duplicates: []ImportResult{},
		Errors:     []ImportResult{},
	}

	for _, item := range items {
		number := domain.NormalizeTicketNumber(item.TicketNumber)
		if number == "" || strings.TrimSpace(item.Organization) == "" {
			summary.Errors = append(summary.Errors, ImportResult{
				TicketNumber: item.TicketNumber,
				Error:        "ticket number and organization are required",
			})
			continue
		}

		if err := s.importOne(ctx, actor, number, item, overwriteExisting, summary); err != nil {
			s.logger.Warn("ticket import failed",
				zap.String("ticket_number", number),
				zap.Error(err))
			summary.Errors = append(summary.Errors, ImportResult{TicketNumber: number, Error: err.Error()})
		}
	}

	s.invalidateStats(ctx, actor.ID)
	return summary, nil
}

func (s *TicketService) importOne(ctx context.Context, actor *domain.User, number string, item TicketImportItem, overwrite bool, summary *ImportSummary) error {
	existing, err := s.tickets.GetByNumber(ctx, number)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	assignee, err := s.ResolveAssignee(ctx, actor, item.AssignedTo)
	if err != nil {
		return err
	}

	status := item.Status
	if status == "" {
		status = domain.TicketStatusOpen
	}
	if !domain.ValidTicketStatus(status) {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}

	if existing != nil {
		if !overwrite {
			summary.Duplicates = append(summary.Duplicates, ImportResult{TicketNumber: number})
			return nil
		}
		existing.Organization = strings.TrimSpace(item.Organization)
		existing.Status = status
		if !item.ExpirationDate.IsZero() {
			existing.ExpirationDate = item.ExpirationDate
		}
		if strings.TrimSpace(item.Location) != "" {
			existing.Location = strings.TrimSpace(item.Location)
		}
		if item.Coordinates != nil {
			existing.Coordinates = item.Coordinates
		}
		if item.AddressData != nil {
			existing.AddressData = item.AddressData
		}
		existing.Notes = strings.TrimSpace(item.Notes)
		existing.AssignedTo = assignee
		if err := s.persist(ctx, existing); err != nil {
			return err
		}
		summary.Imported = append(summary.Imported, ImportResult{TicketNumber: number, Action: "updated"})
		return nil
	}

	ticket := &domain.Ticket{
		TicketNumber:   number,
		Organization:   strings.TrimSpace(item.Organization),
		Status:         status,
		ExpirationDate: item.ExpirationDate,
		Location:       strings.TrimSpace(item.Location),
		Coordinates:    item.Coordinates,
		AddressData:    item.AddressData,
		Notes:          strings.TrimSpace(item.Notes),
		Renewals:       []domain.Renewal{},
		AssignedTo:     assignee,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return err
	}
	summary.Imported = append(summary.Imported, ImportResult{TicketNumber: number, Action: "created"})
	return nil
}

// ResolveAssignee applies the role-scoped assignment policy: contractors
// are always assigned themselves, admins may assign any active user, and
// an empty request defaults to the acting user.
func (s *TicketService) ResolveAssignee(ctx context.Context, actor *domain.User, requested string) (string, error) {
	if actor.Role == domain.UserRoleContractor {
		return actor.ID, nil
	}
	if requested == "" {
		return actor.ID, nil
	}
	return s.validateAssignee(ctx, requested)
}

func (s *TicketService) validateAssignee(ctx context.Context, requested string) (string, error) {
	target, err := s.users.GetByID(ctx, requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewInvalidAssignee("assigned user not found", map[string]any{"user_id": requested})
		}
		return "", apperrors.MapError(err)
	}
	if !target.IsActive {
		return "", apperrors.NewInvalidAssignee("cannot assign ticket to inactive user", map[string]any{"user_id": requested})
	}
	return target.ID, nil
}

func (s *TicketService) loadOwned(ctx context.Context, actor *domain.User, id, action string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if actor.Role == domain.UserRoleContractor && ticket.AssignedTo != actor.ID {
		return nil, apperrors.NewForbidden("you can only " + action + " tickets assigned to you")
	}
	return ticket, nil
}

func (s *TicketService) persist(ctx context.Context, ticket *domain.Ticket) error {
	err := s.tickets.Update(ctx, ticket)
	if errors.Is(err, repository.ErrVersionConflict) {
		return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"ticket_id": ticket.ID})
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) computeStats(ctx context.Context, assignee *string) (*TicketStats, error) {
	counts, err := s.tickets.CountByStatus(ctx, assignee)
	if err != nil {
		return nil, err
	}
	expiringSoon, err := s.tickets.CountExpiringSoon(ctx, assignee, s.now(), expiringSoonWindow)
	if err != nil {
		return nil, err
	}

	stats := &TicketStats{
		Open:         counts[domain.TicketStatusOpen],
		Closed:       counts[domain.TicketStatusClosed],
		Expired:      counts[domain.TicketStatusExpired],
		ExpiringSoon: expiringSoon,
	}
	stats.Total = stats.Open + stats.Closed + stats.Expired
	return stats, nil
}

func (s *TicketService) invalidateStats(ctx context.Context, assignees ...string) {
	if s.cache == nil {
		return
	}
	keys := []string{statsKeyAdmin}
	seen := map[string]struct{}{}
	for _, id := range assignees {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, statsKeyUserPrefix+id)
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
