package listener

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/core/service/email"
	"mailflow/pkg/logger"
)

// Context is the capability surface handed to a listener while it runs.
// Mutations go through the email service so remote and local state stay
// coherent, but the events those mutations produce are discarded here:
// a listener's actions never trigger other listeners.
type Context struct {
	listener domain.ListenerConfig
	emails   *email.Service
	store    out.EmailRepository
	realtime out.RealtimePort
	agent    out.AgentCaller
	log      *logger.Logger
}

// ContextFactory builds a Context per dispatch.
type ContextFactory struct {
	Emails   *email.Service
	Store    out.EmailRepository
	Realtime out.RealtimePort
	Agent    out.AgentCaller
	Log      *logger.Logger
}

func (f *ContextFactory) New(listener domain.ListenerConfig) *Context {
	return &Context{
		listener: listener,
		emails:   f.Emails,
		store:    f.Store,
		realtime: f.Realtime,
		agent:    f.Agent,
		log:      f.Log.WithComponent("listener").WithField("listener_id", listener.ID),
	}
}

// =============================================================================
// Reads
// =============================================================================

func (c *Context) GetEmail(ctx context.Context, messageID string) (*domain.Email, error) {
	return c.store.GetByMessageID(ctx, messageID)
}

func (c *Context) SearchEmails(ctx context.Context, criteria *domain.SearchCriteria) ([]*domain.Email, error) {
	return c.store.SearchEmails(ctx, criteria)
}

func (c *Context) RecentEmails(ctx context.Context, limit int, unreadOnly bool) ([]*domain.Email, error) {
	return c.store.RecentEmails(ctx, limit, 0, unreadOnly)
}

func (c *Context) Statistics(ctx context.Context) (*domain.MailboxStats, error) {
	return c.store.Statistics(ctx)
}

// =============================================================================
// Mutations
// =============================================================================

func (c *Context) ArchiveEmail(ctx context.Context, e *domain.Email) error {
	_, err := c.emails.Archive(ctx, e.MessageID)
	return err
}

func (c *Context) StarEmail(ctx context.Context, e *domain.Email, starred bool) error {
	_, err := c.emails.UpdateFlags(ctx, e.MessageID, &domain.FlagUpdate{IsStarred: &starred})
	return err
}

func (c *Context) MarkRead(ctx context.Context, e *domain.Email, read bool) error {
	_, err := c.emails.UpdateFlags(ctx, e.MessageID, &domain.FlagUpdate{IsRead: &read})
	return err
}

func (c *Context) AddLabel(ctx context.Context, e *domain.Email, label string) error {
	labels := appendUnique(e.Labels, label)
	_, err := c.emails.UpdateFlags(ctx, e.MessageID, &domain.FlagUpdate{Labels: &labels})
	if err == nil {
		e.Labels = labels
	}
	return err
}

func (c *Context) RemoveLabel(ctx context.Context, e *domain.Email, label string) error {
	labels := removeLabel(e.Labels, label)
	_, err := c.emails.UpdateFlags(ctx, e.MessageID, &domain.FlagUpdate{Labels: &labels})
	if err == nil {
		e.Labels = labels
	}
	return err
}

// =============================================================================
// Agent and Notifications
// =============================================================================

func (c *Context) CallAgent(ctx context.Context, prompt string, schema *domain.AgentSchema, model string) (map[string]any, error) {
	return c.agent.CallAgent(ctx, &out.AgentCall{
		Prompt: prompt,
		Schema: schema,
		Model:  model,
	})
}

// Notify pushes a message to realtime subscribers. Delivery is best
// effort and never fails the listener.
func (c *Context) Notify(message string, priority domain.NotificationPriority, e *domain.Email) {
	n := &domain.Notification{
		ID:           uuid.NewString(),
		ListenerID:   c.listener.ID,
		ListenerName: c.listener.Name,
		Priority:     priority,
		Message:      message,
		Timestamp:    time.Now().UTC(),
	}
	if e != nil {
		n.MessageID = e.MessageID
	}
	c.realtime.PushNotification(n)
	c.log.WithField("priority", string(priority)).Info("listener notification: %s", message)
}

func appendUnique(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	out := make([]string, len(labels), len(labels)+1)
	copy(out, labels)
	return append(out, label)
}

func removeLabel(labels []string, label string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}
