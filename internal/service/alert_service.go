package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/repository"
	apperrors "github.com/digsafe/permit-service/pkg/util"
)

// AlertService exposes the alert query surface. Contractors only see
// alerts for tickets assigned to them; admins see everything.
type AlertService struct {
	alerts  repository.AlertRepository
	tickets repository.TicketRepository
}

// NewAlertService constructs the service.
func NewAlertService(alerts repository.AlertRepository, tickets repository.TicketRepository) *AlertService {
	return &AlertService{alerts: alerts, tickets: tickets}
}

// AlertListInput describes alert listing filters.
type AlertListInput struct {
	Type       *domain.AlertType
	TicketID   *string
	UnreadOnly bool
	Page       int
	PageSize   int
}

// AlertPage is a paginated listing result.
type AlertPage struct {
	Items    []domain.Alert
	Total    int64
	Page     int
	PageSize int
}

// ListAlerts returns a page of alerts scoped to the acting user.
func (s *AlertService) ListAlerts(ctx context.Context, actor *domain.User, input AlertListInput) (*AlertPage, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}
	if input.Type != nil && !domain.ValidAlertType(*input.Type) {
		return nil, apperrors.NewValidationError("invalid alert type", map[string]any{"type": *input.Type})
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	filter := repository.AlertFilter{
		Type:       input.Type,
		TicketID:   input.TicketID,
		UnreadOnly: input.UnreadOnly,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	}
	if actor.Role == domain.UserRoleContractor {
		id := actor.ID
		filter.AssigneeID = &id
	}

	items, err := s.alerts.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	total, err := s.alerts.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &AlertPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetAlert fetches a single alert enforcing contractor scope.
func (s *AlertService) GetAlert(ctx context.Context, actor *domain.User, id string) (*domain.Alert, error) {
	return s.loadScoped(ctx, actor, id)
}

// SetRead toggles the read flag, the only mutable alert field.
func (s *AlertService) SetRead(ctx context.Context, actor *domain.User, id string, read bool) (*domain.Alert, error) {
	alert, err := s.loadScoped(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.alerts.SetRead(ctx, id, read); err != nil {
		return nil, apperrors.MapError(err)
	}
	alert.IsRead = read
	return alert, nil
}

// MarkAllRead marks every unread alert in the actor's scope as read and
// returns the number of alerts affected.
func (s *AlertService) MarkAllRead(ctx context.Context, actor *domain.User) (int64, error) {
	if actor == nil {
		return 0, apperrors.NewUnauthorized("acting user required")
	}

	var assignee *string
	if actor.Role == domain.UserRoleContractor {
		id := actor.ID
		assignee = &id
	}

	updated, err := s.alerts.MarkAllRead(ctx, assignee)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return updated, nil
}

// DeleteAlert removes an alert. Admin only.
func (s *AlertService) DeleteAlert(ctx context.Context, actor *domain.User, id string) error {
	if actor == nil || actor.Role != domain.UserRoleAdmin {
		return apperrors.NewForbidden("only admins can delete alerts")
	}
	if err := s.alerts.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("alert", map[string]any{"alert_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *AlertService) loadScoped(ctx context.Context, actor *domain.User, id string) (*domain.Alert, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("acting user required")
	}

	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("alert", map[string]any{"alert_id": id})
		}
		return nil, apperrors.MapError(err)
	}

	if actor.Role == domain.UserRoleContractor {
		ticket, err := s.tickets.GetByID(ctx, alert.TicketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Orphaned alert from before cascade deletes; hide it from
				// contractors rather than leaking another user's data.
				return nil, apperrors.NewNotFound("alert", map[string]any{"alert_id": id})
			}
			return nil, apperrors.MapError(err)
		}
		if ticket.AssignedTo != actor.ID {
			return nil, apperrors.NewForbidden("you can only access alerts for tickets assigned to you")
		}
	}
	return alert, nil
}
