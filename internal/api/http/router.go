package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Search         *handlers.SearchHandler
	Attachments    *handlers.AttachmentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Role checks on admin routes are repeated
// by the services.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())

	tickets := protected.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Post("/:id/assign", auth.RequireAdmin(), cfg.Tickets.AssignTicket)
	tickets.Post("/:id/status", auth.RequireAdmin(), cfg.Tickets.SetStatus)
	tickets.Get("/:id/audit", auth.RequireAdmin(), cfg.Tickets.ListAudit)

	protected.Get("/search", cfg.Search.Search)
	protected.Get("/autocomplete", cfg.Search.Autocomplete)

	protected.Post("/attachments", cfg.Attachments.Upload)
	protected.Get("/attachments/:key", cfg.Attachments.Download)

	protected.Get("/metrics", auth.RequireAdmin(), cfg.Health.Metrics)
}
