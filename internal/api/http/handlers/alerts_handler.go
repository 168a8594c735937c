package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/digsafe/permit-service/internal/api/dto"
	"github.com/digsafe/permit-service/internal/auth"
	"github.com/digsafe/permit-service/internal/domain"
	"github.com/digsafe/permit-service/internal/service"
	apperrors "github.com/digsafe/permit-service/pkg/util"
)

// AlertsHandler manages alert endpoints.
type AlertsHandler struct {
	service *service.AlertService
}

// NewAlertsHandler constructs handler.
func NewAlertsHandler(alertService *service.AlertService) *AlertsHandler {
	return &AlertsHandler{service: alertService}
}

// ListAlerts GET /alerts.
func (h *AlertsHandler) ListAlerts(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}

	input := service.AlertListInput{
		UnreadOnly: c.Query("unread") == "true",
		Page:       parseInt(c.Query("page"), 1),
		PageSize:   parseInt(c.Query("page_size"), 50),
	}
	if alertType := c.Query("type"); alertType != "" {
		t := domain.AlertType(alertType)
		input.Type = &t
	}
	if ticketID := c.Query("ticket_id"); ticketID != "" {
		input.TicketID = &ticketID
	}

	page, err := h.service.ListAlerts(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AlertPageFromDomain(page)})
}

// GetAlert GET /alerts/:id.
func (h *AlertsHandler) GetAlert(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	alert, err := h.service.GetAlert(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AlertFromDomain(alert)})
}

// SetRead PATCH /alerts/:id/read.
func (h *AlertsHandler) SetRead(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	req := dto.SetAlertReadRequest{IsRead: true}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}

	alert, err := h.service.SetRead(c.UserContext(), actor, c.Params("id"), req.IsRead)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AlertFromDomain(alert)})
}

// MarkAllRead POST /alerts/read-all.
func (h *AlertsHandler) MarkAllRead(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	updated, err := h.service.MarkAllRead(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MarkAllReadResponse{Updated: updated}})
}

// DeleteAlert DELETE /alerts/:id.
func (h *AlertsHandler) DeleteAlert(c *fiber.Ctx) error {
	actor, ok := auth.UserFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.service.DeleteAlert(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
