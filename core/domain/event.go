package domain

import "time"

// EventKind names the triggers listeners can subscribe to.
type EventKind string

const (
	EventEmailReceived EventKind = "email_received"
	EventEmailSent     EventKind = "email_sent"
	EventEmailStarred  EventKind = "email_starred"
	EventEmailArchived EventKind = "email_archived"
	EventEmailLabeled  EventKind = "email_labeled"
	EventScheduledTime EventKind = "scheduled_time"
)

// ValidEventKind reports whether s names a known trigger.
func ValidEventKind(s string) bool {
	switch EventKind(s) {
	case EventEmailReceived, EventEmailSent, EventEmailStarred,
		EventEmailArchived, EventEmailLabeled, EventScheduledTime:
		return true
	}
	return false
}

// Event is one occurrence delivered to the dispatcher. Email is set for
// every kind except scheduled_time; Label only accompanies email_labeled.
type Event struct {
	Kind      EventKind `json:"kind"`
	Email     *Email    `json:"email,omitempty"`
	Label     string    `json:"label,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEmailEvent builds an email-carrying event stamped now.
func NewEmailEvent(kind EventKind, email *Email) *Event {
	return &Event{Kind: kind, Email: email, Timestamp: time.Now().UTC()}
}

// NewScheduledEvent builds a timer event stamped now.
func NewScheduledEvent() *Event {
	return &Event{Kind: EventScheduledTime, Timestamp: time.Now().UTC()}
}

// NotificationPriority orders listener notifications for consumers.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification is a listener-authored message pushed to realtime
// subscribers.
type Notification struct {
	ID           string               `json:"id"`
	ListenerID   string               `json:"listener_id"`
	ListenerName string               `json:"listener_name,omitempty"`
	Priority     NotificationPriority `json:"priority"`
	Message      string               `json:"message"`
	MessageID    string               `json:"message_id,omitempty"`
	Timestamp    time.Time            `json:"timestamp"`
}
