package http

import (
	"github.com/gofiber/fiber/v2"

	"mailflow/core/domain"
	"mailflow/core/service/sync"
	"mailflow/pkg/logger"
	"mailflow/pkg/response"
)

// SyncHandler triggers manual sync runs and reports sync status.
type SyncHandler struct {
	sync *sync.Service
	log  *logger.Logger
}

func NewSyncHandler(syncService *sync.Service, log *logger.Logger) *SyncHandler {
	return &SyncHandler{
		sync: syncService,
		log:  log.WithComponent("sync_handler"),
	}
}

func (h *SyncHandler) Register(api fiber.Router) {
	api.Post("/sync", h.Trigger)
	api.Get("/sync/status", h.Status)
}

// Trigger runs one manual sync. Options are optional; an empty body
// syncs the default folder with default lookback. A run already in
// progress answers 409.
func (h *SyncHandler) Trigger(c *fiber.Ctx) error {
	opts := &domain.SyncOptions{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(opts); err != nil {
			return response.BadRequest(c, "invalid sync options")
		}
	}
	opts.Type = domain.SyncManual

	result, err := h.sync.SyncEmails(c.Context(), opts)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Status returns the most recent completed sync run.
func (h *SyncHandler) Status(c *fiber.Ctx) error {
	result, err := h.sync.LastRun(c.Context())
	if err != nil {
		return response.FromError(c, err)
	}
	if result == nil {
		return response.OK(c, fiber.Map{"synced_yet": false})
	}
	return response.OK(c, result)
}
