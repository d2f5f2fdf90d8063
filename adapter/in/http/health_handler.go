package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"

	"mailflow/core/port/out"
)

type HealthHandler struct {
	db      *sqlx.DB
	mailbox out.MailboxProvider
}

func NewHealthHandler(db *sqlx.DB, mailbox out.MailboxProvider) *HealthHandler {
	return &HealthHandler{
		db:      db,
		mailbox: mailbox,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	// Check SQLite
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			checks["sqlite"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks["sqlite"] = "healthy"
		}
	} else {
		checks["sqlite"] = "not configured"
	}

	// IMAP readiness is advisory: the connection is lazy and heals
	// itself, so a closed connection does not fail readiness.
	if h.mailbox != nil {
		if h.mailbox.IdleActive() {
			checks["imap"] = "idle"
		} else {
			checks["imap"] = "not idling"
		}
	} else {
		checks["imap"] = "not configured"
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
