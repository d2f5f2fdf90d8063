package http

import (
	"github.com/gofiber/fiber/v2"

	"mailflow/core/service/listener"
	"mailflow/pkg/logger"
	"mailflow/pkg/response"
)

// ListenerHandler exposes the rule registry read-only. Rules change by
// editing files in the rules directory; the watcher picks edits up.
type ListenerHandler struct {
	registry *listener.Registry
	log      *logger.Logger
}

func NewListenerHandler(registry *listener.Registry, log *logger.Logger) *ListenerHandler {
	return &ListenerHandler{
		registry: registry,
		log:      log.WithComponent("listener_handler"),
	}
}

func (h *ListenerHandler) Register(api fiber.Router) {
	api.Get("/listeners", h.List)
	api.Get("/listener/:id", h.GetOne)
}

// List returns every loaded listener plus registry stats, including
// files that failed to load.
func (h *ListenerHandler) List(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"listeners": h.registry.All(),
		"stats":     h.registry.Stats(),
	})
}

// GetOne returns one listener's config plus its rule file text.
func (h *ListenerHandler) GetOne(c *fiber.Ctx) error {
	id := c.Params("id")

	module, ok := h.registry.Get(id)
	if !ok {
		return response.NotFound(c, "listener not found")
	}
	source, err := h.registry.Source(id)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, fiber.Map{
		"config": module.Config,
		"source": source,
	})
}
