// Package realtime provides real-time communication adapters.
package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"mailflow/core/domain"
	"mailflow/core/port/out"
)

// =============================================================================
// SSE Adapter - RealtimePort implementation
// =============================================================================

// SSEAdapter implements out.RealtimePort using Server-Sent Events. Frames
// fan out to every subscriber; a subscriber whose buffer is full loses the
// frame rather than stalling the engine.
type SSEAdapter struct {
	subscribers map[chan *out.RealtimeFrame]struct{}
	mu          sync.RWMutex
	log         zerolog.Logger

	messagesSent    int64
	messagesDropped int64
	seqCounter      int64
}

// NewSSEAdapter creates a new SSE adapter.
func NewSSEAdapter(log zerolog.Logger) *SSEAdapter {
	return &SSEAdapter{
		subscribers: make(map[chan *out.RealtimeFrame]struct{}),
		log:         log.With().Str("component", "sse_adapter").Logger(),
	}
}

// Subscribe creates a new subscription channel.
func (a *SSEAdapter) Subscribe() <-chan *out.RealtimeFrame {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan *out.RealtimeFrame, 256) // Buffer for backpressure
	a.subscribers[ch] = struct{}{}

	a.log.Debug().
		Int("total_connections", len(a.subscribers)).
		Msg("client subscribed")

	return ch
}

// Unsubscribe removes a subscription channel.
func (a *SSEAdapter) Unsubscribe(ch <-chan *out.RealtimeFrame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for c := range a.subscribers {
		if c == ch {
			delete(a.subscribers, c)
			close(c)
			break
		}
	}

	a.log.Debug().
		Int("total_connections", len(a.subscribers)).
		Msg("client unsubscribed")
}

// PushNotification forwards a listener-authored notification.
func (a *SSEAdapter) PushNotification(n *domain.Notification) {
	a.push(&out.RealtimeFrame{
		Type:      "listener_notification",
		Data:      n,
		Timestamp: time.Now(),
	})
}

// PushListenersUpdate announces the registry view after a reload.
func (a *SSEAdapter) PushListenersUpdate(configs []*domain.ListenerConfig) {
	a.push(&out.RealtimeFrame{
		Type:      "listeners_update",
		Data:      configs,
		Timestamp: time.Now(),
	})
}

// PushError surfaces a background failure to subscribers.
func (a *SSEAdapter) PushError(message string) {
	a.push(&out.RealtimeFrame{
		Type:      "sync_error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now(),
	})
}

func (a *SSEAdapter) push(frame *out.RealtimeFrame) {
	frame.Seq = atomic.AddInt64(&a.seqCounter, 1)

	a.mu.RLock()
	chList := make([]chan *out.RealtimeFrame, 0, len(a.subscribers))
	for ch := range a.subscribers {
		chList = append(chList, ch)
	}
	a.mu.RUnlock()

	for _, ch := range chList {
		select {
		case ch <- frame:
			atomic.AddInt64(&a.messagesSent, 1)
		default:
			// Channel full, drop frame (backpressure)
			atomic.AddInt64(&a.messagesDropped, 1)
			a.log.Warn().
				Str("frame_type", frame.Type).
				Msg("dropped frame due to full buffer")
		}
	}
}

// ConnectedCount returns the number of connected subscribers.
func (a *SSEAdapter) ConnectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subscribers)
}

// Metrics returns adapter metrics.
func (a *SSEAdapter) Metrics() SSEMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return SSEMetrics{
		Connections:     len(a.subscribers),
		MessagesSent:    atomic.LoadInt64(&a.messagesSent),
		MessagesDropped: atomic.LoadInt64(&a.messagesDropped),
	}
}

// SSEMetrics holds SSE adapter metrics.
type SSEMetrics struct {
	Connections     int   `json:"connections"`
	MessagesSent    int64 `json:"messages_sent"`
	MessagesDropped int64 `json:"messages_dropped"`
}

// SerializeFrame converts a frame to its SSE data payload.
func SerializeFrame(frame *out.RealtimeFrame) ([]byte, error) {
	return json.Marshal(frame)
}

var _ out.RealtimePort = (*SSEAdapter)(nil)
