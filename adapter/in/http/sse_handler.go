package http

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"mailflow/adapter/out/realtime"
)

// =============================================================================
// SSE Handler
// =============================================================================

// SSEHandler streams engine events to browsers over Server-Sent Events.
type SSEHandler struct {
	adapter           *realtime.SSEAdapter
	heartbeatInterval time.Duration
	log               zerolog.Logger
}

// NewSSEHandler creates a new SSE handler.
func NewSSEHandler(adapter *realtime.SSEAdapter, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		adapter:           adapter,
		heartbeatInterval: 30 * time.Second,
		log:               log.With().Str("handler", "sse").Logger(),
	}
}

// Register registers SSE routes.
func (h *SSEHandler) Register(api fiber.Router) {
	api.Get("/events", h.Stream)
	api.Get("/events/status", h.Status)
}

// Stream handles one SSE connection.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	frames := h.adapter.Subscribe()

	h.log.Info().Msg("SSE client connected")

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()
		defer func() {
			h.adapter.Unsubscribe(frames)
			h.log.Info().Msg("SSE client disconnected")
		}()

		// Send initial connection event
		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		w.Flush()

		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					return
				}

				data, err := realtime.SerializeFrame(frame)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize frame")
					continue
				}

				w.WriteString("event: ")
				w.WriteString(frame.Type)
				w.WriteString("\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")

				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

// Status reports connection and delivery counters.
func (h *SSEHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.adapter.Metrics())
}
