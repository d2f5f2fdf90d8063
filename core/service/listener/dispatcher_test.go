package listener

import (
	"context"
	"strings"
	"testing"

	"mailflow/core/domain"
	"mailflow/core/service/email"
	"mailflow/pkg/logger"
)

func loadDispatcher(t *testing.T, h *harness, rules map[string]string) (*Dispatcher, *Registry) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range rules {
		writeRule(t, dir, name, content)
	}
	log := logger.New(logger.Config{Level: logger.LevelError})
	reg := NewRegistry(dir, log)
	if err := reg.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return NewDispatcher(reg, h.factory, h.realtime, log), reg
}

func TestCheckEventStableOrder(t *testing.T) {
	h := newHarness()
	e := inboxEmail("<m1@example.com>")
	h.repo.emails[e.MessageID] = e

	d, _ := loadDispatcher(t, h, map[string]string{
		"z.yaml": "id: zeta\nevent: email_received\nactions:\n  - type: notify\n    message: zeta saw it\n",
		"a.yaml": "id: alpha\nevent: email_received\nactions:\n  - type: notify\n    message: alpha saw it\n",
	})

	d.CheckEvent(context.Background(), domain.NewEmailEvent(domain.EventEmailReceived, e))

	if len(h.realtime.notifications) != 2 {
		t.Fatalf("notifications = %d, want 2", len(h.realtime.notifications))
	}
	if h.realtime.notifications[0].ListenerID != "alpha" || h.realtime.notifications[1].ListenerID != "zeta" {
		t.Errorf("dispatch order = [%s %s], want [alpha zeta]",
			h.realtime.notifications[0].ListenerID, h.realtime.notifications[1].ListenerID)
	}
}

func TestCheckEventSkipsOtherKinds(t *testing.T) {
	h := newHarness()
	e := inboxEmail("<m1@example.com>")
	h.repo.emails[e.MessageID] = e

	d, _ := loadDispatcher(t, h, map[string]string{
		"r.yaml": "id: on-archive\nevent: email_archived\nactions:\n  - type: notify\n    message: archived\n",
	})

	d.CheckEvent(context.Background(), domain.NewEmailEvent(domain.EventEmailReceived, e))
	if len(h.realtime.notifications) != 0 {
		t.Errorf("listener for another kind fired: %v", h.realtime.notifications)
	}
}

func TestDispatchErrorIsContained(t *testing.T) {
	h := newHarness()
	h.mailbox.failOps = true
	e := inboxEmail("<m1@example.com>")
	h.repo.emails[e.MessageID] = e

	d, _ := loadDispatcher(t, h, map[string]string{
		"a.yaml": "id: a-fails\nevent: email_received\nactions:\n  - type: archive\n",
		"b.yaml": "id: b-notifies\nevent: email_received\nactions:\n  - type: notify\n    message: still here\n",
	})

	d.CheckEvent(context.Background(), domain.NewEmailEvent(domain.EventEmailReceived, e))

	if len(h.realtime.errors) != 1 {
		t.Fatalf("errors = %v, want one entry", h.realtime.errors)
	}
	if !strings.Contains(h.realtime.errors[0], "a-fails") {
		t.Errorf("error should name the failed listener: %q", h.realtime.errors[0])
	}
	if len(h.realtime.notifications) != 1 || h.realtime.notifications[0].ListenerID != "b-notifies" {
		t.Errorf("later listeners should still run, got %v", h.realtime.notifications)
	}
}

func TestDispatchPanicIsContained(t *testing.T) {
	h := newHarness()
	e := inboxEmail("<m1@example.com>")
	h.repo.emails[e.MessageID] = e

	d, reg := loadDispatcher(t, h, map[string]string{
		"p.yaml": "id: a-panics\nevent: email_received\nactions:\n  - type: notify\n    message: boom\n",
		"q.yaml": "id: b-survives\nevent: email_received\nactions:\n  - type: mark_read\n",
	})

	// A context factory with no realtime port makes Notify dereference
	// nil, which stands in for an arbitrary listener panic.
	log := logger.New(logger.Config{Level: logger.LevelError})
	d.contexts = &ContextFactory{
		Emails: email.New(h.repo, h.mailbox, log),
		Store:  h.repo,
		Agent:  h.agent,
		Log:    log,
	}
	_ = reg

	d.CheckEvent(context.Background(), domain.NewEmailEvent(domain.EventEmailReceived, e))

	if len(h.realtime.errors) != 1 {
		t.Fatalf("errors = %v, want one panic report", h.realtime.errors)
	}
	if !strings.Contains(h.realtime.errors[0], "a-panics") || !strings.Contains(h.realtime.errors[0], "panicked") {
		t.Errorf("panic report = %q", h.realtime.errors[0])
	}
	if len(h.mailbox.marked) != 1 {
		t.Errorf("listener after the panicking one should still run: %v", h.mailbox.marked)
	}
}
