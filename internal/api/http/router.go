package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/digsafe/permit-service/internal/api/http/handlers"
	"github.com/digsafe/permit-service/internal/auth"
	"github.com/digsafe/permit-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Alerts         *handlers.AlertsHandler
	Monitor        *handlers.MonitorHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Users.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats", cfg.Tickets.GetStats)
	tickets.Get("/numbers/next", cfg.Tickets.GenerateNumber)
	tickets.Get("/numbers/:number/check", cfg.Tickets.CheckNumber)
	tickets.Post("/import", cfg.Tickets.ImportTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/renew", cfg.Tickets.RenewTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Delete("/:id", auth.RequireRole(domain.UserRoleAdmin), cfg.Tickets.DeleteTicket)

	alerts := app.Group("/alerts", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	alerts.Get("/", cfg.Alerts.ListAlerts)
	alerts.Post("/read-all", cfg.Alerts.MarkAllRead)
	alerts.Get("/:id", cfg.Alerts.GetAlert)
	alerts.Patch("/:id/read", cfg.Alerts.SetRead)
	alerts.Delete("/:id", auth.RequireRole(domain.UserRoleAdmin), cfg.Alerts.DeleteAlert)

	monitor := app.Group("/monitor", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.UserRoleAdmin))
	monitor.Post("/run", cfg.Monitor.TriggerPass)
	monitor.Get("/stats", cfg.Monitor.Stats)
}
