package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"mailflow/core/domain"
	"mailflow/core/service/email"
	"mailflow/core/service/listener"
	"mailflow/pkg/logger"
	"mailflow/pkg/response"
)

// EmailHandler serves the mirror read surface and the coherent
// mutation endpoints. Events returned by mutations are dispatched here,
// in the background, so listeners react to API writes without stalling
// the response.
type EmailHandler struct {
	emails     *email.Service
	dispatcher *listener.Dispatcher
	log        *logger.Logger
}

func NewEmailHandler(emails *email.Service, dispatcher *listener.Dispatcher, log *logger.Logger) *EmailHandler {
	return &EmailHandler{
		emails:     emails,
		dispatcher: dispatcher,
		log:        log.WithComponent("email_handler"),
	}
}

func (h *EmailHandler) Register(api fiber.Router) {
	api.Get("/emails/inbox", h.Inbox)
	api.Post("/emails/search", h.Search)
	api.Post("/emails/batch", h.Batch)
	api.Get("/emails/stats", h.Stats)
	api.Get("/email/:messageId", h.GetOne)
	api.Patch("/email/:messageId/flags", h.UpdateFlags)
	api.Post("/email/:messageId/archive", h.Archive)
}

// Inbox returns mirrored messages newest first.
func (h *EmailHandler) Inbox(c *fiber.Ctx) error {
	pagination := response.GetPagination(c, 50, 200)
	includeRead := c.QueryBool("includeRead", true)

	emails, err := h.emails.Recent(c.Context(), pagination.Limit, pagination.Offset, !includeRead)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OKWithMeta(c, emails, &response.Meta{
		Page:     pagination.Page,
		PageSize: pagination.PageSize,
	})
}

// Search runs structured and full-text criteria against the mirror.
func (h *EmailHandler) Search(c *fiber.Ctx) error {
	var criteria domain.SearchCriteria
	if err := c.BodyParser(&criteria); err != nil {
		return response.BadRequest(c, "invalid search criteria")
	}

	emails, err := h.emails.Search(c.Context(), &criteria)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, emails)
}

// Batch returns full records for a list of message ids. Unknown ids
// are omitted rather than erroring the whole request.
func (h *EmailHandler) Batch(c *fiber.Ctx) error {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return response.BadRequest(c, "ids is required")
	}

	emails, err := h.emails.Batch(c.Context(), req.IDs)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, emails)
}

func (h *EmailHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.emails.Statistics(c.Context())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, stats)
}

func (h *EmailHandler) GetOne(c *fiber.Ctx) error {
	messageID := c.Params("messageId")
	if messageID == "" {
		return response.BadRequest(c, "messageId is required")
	}

	record, err := h.emails.GetByMessageID(c.Context(), messageID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, record)
}

// UpdateFlags applies a partial flag update remotely then locally, and
// dispatches any resulting events to subscribed listeners.
func (h *EmailHandler) UpdateFlags(c *fiber.Ctx) error {
	messageID := c.Params("messageId")

	var update domain.FlagUpdate
	if err := c.BodyParser(&update); err != nil {
		return response.BadRequest(c, "invalid flag update")
	}
	if update.IsEmpty() {
		return response.BadRequest(c, "no fields to update")
	}

	events, err := h.emails.UpdateFlags(c.Context(), messageID, &update)
	if err != nil {
		return response.FromError(c, err)
	}
	h.dispatchAsync(events...)

	record, err := h.emails.GetByMessageID(c.Context(), messageID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.OK(c, record)
}

// Archive moves the message to the archive folder.
func (h *EmailHandler) Archive(c *fiber.Ctx) error {
	messageID := c.Params("messageId")

	event, err := h.emails.Archive(c.Context(), messageID)
	if err != nil {
		return response.FromError(c, err)
	}
	h.dispatchAsync(event)

	return response.OK(c, fiber.Map{"message_id": messageID, "archived": true})
}

// dispatchAsync delivers mutation events to listeners off the request
// path. The request context is not reused: listener work must survive
// the response being written.
func (h *EmailHandler) dispatchAsync(events ...*domain.Event) {
	for _, event := range events {
		if event == nil {
			continue
		}
		go h.dispatcher.CheckEvent(context.Background(), event)
	}
}
