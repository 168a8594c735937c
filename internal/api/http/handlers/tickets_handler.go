package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/digsafe/permit-service/internal/api/dto"
	"github.com/digsafe/permit-service/internal/auth"
	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/repository"
	"github.com/digsafe/permit-service/internal/service"
	apperrors "github.com/digsafe/permit-service/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		TicketNumber:   req.TicketNumber,
		Organization:   req.Organization,
		Status:         req.Status,
		ExpirationDate: req.ExpirationDate,
		Location:       req.Location,
		Coordinates:    req.Coordinates,
		AddressData:    req.AddressData,
		Notes:          req.Notes,
		AssignedTo:     req.AssignedTo,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}

	page, err := h.service.ListTickets(c.UserContext(), actor, parseTicketListQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketPageFromDomain(page)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// UpdateTicket PATCH /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.UpdateTicket(c.UserContext(), actor, c.Params("id"), service.TicketUpdateInput{
		Organization:   req.Organization,
		Location:       req.Location,
		Notes:          req.Notes,
		ExpirationDate: req.ExpirationDate,
		Status:         req.Status,
		AssignedTo:     req.AssignedTo,
		Coordinates:    req.Coordinates,
		AddressData:    req.AddressData,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// RenewTicket POST /tickets/:id/renew.
func (h *TicketsHandler) RenewTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RenewTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.Days < 0 {
		return apperrors.NewValidationError("days must be positive", nil)
	}

	ticket, err := h.service.RenewTicket(c.UserContext(), actor, c.Params("id"), req.Days)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.service.CloseTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.service.DeleteTicket(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// GetStats GET /tickets/stats.
func (h *TicketsHandler) GetStats(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	stats, err := h.service.GetStats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// GenerateNumber GET /tickets/numbers/next.
func (h *TicketsHandler) GenerateNumber(c *fiber.Ctx) error {
	if _, ok := auth.UserFromContext(c); !ok {
		return apperrors.NewUnauthorized("user required")
	}
	number, err := h.service.GenerateTicketNumber(c.UserContext())
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket_number": number}})
}

// CheckNumber GET /tickets/numbers/:number/check.
func (h *TicketsHandler) CheckNumber(c *fiber.Ctx) error {
	if _, ok := auth.UserFromContext(c); !ok {
		return apperrors.NewUnauthorized("user required")
	}
	number := c.Params("number")
	taken, err := h.service.CheckTicketNumber(c.UserContext(), number)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NumberCheckResponse{
		TicketNumber: domain.NormalizeTicketNumber(number),
		Available:    !taken,
	}})
}

// ImportTickets POST /tickets/import.
func (h *TicketsHandler) ImportTickets(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ImportTicketsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Tickets) == 0 {
		return apperrors.NewValidationError("tickets array required", nil)
	}

	items := make([]service.TicketImportItem, 0, len(req.Tickets))
	for _, item := range req.Tickets {
		items = append(items, service.TicketImportItem{
			TicketNumber:   item.TicketNumber,
			Organization:   item.Organization,
			Status:         item.Status,
			ExpirationDate: item.ExpirationDate,
			Location:       item.Location,
			Coordinates:    item.Coordinates,
			AddressData:    item.AddressData,
			Notes:          item.Notes,
			AssignedTo:     item.AssignedTo,
		})
	}

	summary, err := h.service.ImportTickets(c.UserContext(), actor, items, req.OverwriteExisting)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

func parseTicketListQuery(c *fiber.Ctx) service.TicketListInput {
	input := service.TicketListInput{
		Page:     parseInt(c.Query("page"), 1),
		PageSize: parseInt(c.Query("page_size"), 25),
		SortBy:   repository.TicketSortField(c.Query("sort_by")),
		SortDesc: c.Query("order") == "desc",
	}
	if status := c.Query("status"); status != "" {
		s := domain.TicketStatus(status)
		input.Status = &s
	}
	if org := c.Query("organization"); org != "" {
		input.Organization = &org
	}
	if number := c.Query("ticket_number"); number != "" {
		normalized := domain.NormalizeTicketNumber(number)
		input.TicketNumber = &normalized
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		input.AssigneeID = &assignee
	}
	return input
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
