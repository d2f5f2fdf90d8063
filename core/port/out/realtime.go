package out

import (
	"time"

	"mailflow/core/domain"
)

// RealtimeFrame is one event pushed to connected subscribers. Seq is a
// monotonic per-process counter; clients use gaps to detect dropped
// frames.
type RealtimeFrame struct {
	Type      string    `json:"type"`
	Seq       int64     `json:"seq"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RealtimePort pushes engine events to connected clients. Delivery is
// best effort: a slow subscriber loses frames rather than stalling the
// engine.
type RealtimePort interface {
	// PushNotification forwards a listener-authored notification.
	PushNotification(n *domain.Notification)

	// PushListenersUpdate announces the registry view after a reload.
	PushListenersUpdate(configs []*domain.ListenerConfig)

	// PushError surfaces a background failure to subscribers.
	PushError(message string)

	ConnectedCount() int
}
