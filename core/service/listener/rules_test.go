package listener

import (
	"context"
	"strings"
	"testing"

	"mailflow/core/domain"
)

func TestCompileRuleValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing id",
			yaml:    "event: email_received\nactions:\n  - type: star\n",
			wantErr: "id",
		},
		{
			name:    "unknown event",
			yaml:    "id: r1\nevent: email_teleported\nactions:\n  - type: star\n",
			wantErr: "unknown event",
		},
		{
			name:    "scheduled without schedule",
			yaml:    "id: r1\nevent: scheduled_time\nactions:\n  - type: star\n",
			wantErr: "schedule",
		},
		{
			name:    "scheduled with bad duration",
			yaml:    "id: r1\nevent: scheduled_time\nschedule: fortnightly\nactions:\n  - type: star\n",
			wantErr: "schedule",
		},
		{
			name:    "no actions and no agent",
			yaml:    "id: r1\nevent: email_received\n",
			wantErr: "neither actions nor an agent",
		},
		{
			name:    "unknown action type",
			yaml:    "id: r1\nevent: email_received\nactions:\n  - type: forward\n",
			wantErr: "unknown action",
		},
		{
			name:    "add_label without label",
			yaml:    "id: r1\nevent: email_received\nactions:\n  - type: add_label\n",
			wantErr: "label",
		},
		{
			name:    "notify without message",
			yaml:    "id: r1\nevent: email_received\nactions:\n  - type: notify\n",
			wantErr: "message",
		},
		{
			name:    "bad subject regex",
			yaml:    "id: r1\nevent: email_received\nmatch:\n  subject_matches: \"[unclosed\"\nactions:\n  - type: star\n",
			wantErr: "subject_matches",
		},
		{
			name: "agent without prompt",
			yaml: `id: r1
event: email_received
agent:
  schema:
    properties:
      urgent: {type: boolean}
`,
			wantErr: "agent.prompt",
		},
		{
			name: "agent with unknown model",
			yaml: `id: r1
event: email_received
agent:
  prompt: classify this
  model: gpt-9
  schema:
    properties:
      urgent: {type: boolean}
`,
			wantErr: "agent.model",
		},
		{
			name: "agent with empty schema",
			yaml: `id: r1
event: email_received
agent:
  prompt: classify this
`,
			wantErr: "agent.schema.properties",
		},
		{
			name: "when references missing property",
			yaml: `id: r1
event: email_received
agent:
  prompt: classify this
  when: spam
  schema:
    properties:
      urgent: {type: boolean}
`,
			wantErr: "agent.when",
		},
		{
			name: "when references non-boolean property",
			yaml: `id: r1
event: email_received
agent:
  prompt: classify this
  when: score
  schema:
    properties:
      score: {type: number}
`,
			wantErr: "boolean",
		},
		{
			name: "valid minimal",
			yaml: "id: r1\nevent: email_received\nactions:\n  - type: mark_read\n",
		},
		{
			name: "valid scheduled",
			yaml: "id: digest\nevent: scheduled_time\nschedule: 24h\nactions:\n  - type: notify\n    message: daily digest\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := mustCompile(tt.yaml)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("compileRule: %v", err)
				}
				if m.Config.ID == "" {
					t.Fatal("compiled module has empty id")
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got module %+v", tt.wantErr, m.Config)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCompileRuleDefaults(t *testing.T) {
	m, err := mustCompile("id: quiet-hours\nevent: email_received\nactions:\n  - type: star\n")
	if err != nil {
		t.Fatalf("compileRule: %v", err)
	}
	if m.Config.Name != "quiet-hours" {
		t.Errorf("name should default to id, got %q", m.Config.Name)
	}
	if !m.Config.Enabled {
		t.Error("enabled should default to true")
	}

	m, err = mustCompile("id: r1\nname: Quiet Hours\nenabled: false\nevent: email_received\nactions:\n  - type: star\n")
	if err != nil {
		t.Fatalf("compileRule: %v", err)
	}
	if m.Config.Name != "Quiet Hours" {
		t.Errorf("name = %q", m.Config.Name)
	}
	if m.Config.Enabled {
		t.Error("enabled: false should stick")
	}
}

func TestModuleMatches(t *testing.T) {
	base := func() *domain.Email {
		e := inboxEmail("<m1@example.com>")
		e.Attachments = []*domain.Attachment{{Filename: "invoice.pdf"}}
		return e
	}

	tests := []struct {
		name  string
		match string
		mut   func(*domain.Email)
		label string
		want  bool
	}{
		{name: "no match block matches everything", match: "", want: true},
		{name: "from_contains hit", match: "  from_contains: [billing]\n", want: true},
		{name: "from_contains matches display name", match: "  from_contains: [acme billing]\n", want: true},
		{name: "from_contains miss", match: "  from_contains: [noreply]\n", want: false},
		{name: "from_domain hit", match: "  from_domain: [ACME.example]\n", want: true},
		{name: "from_domain miss", match: "  from_domain: [other.example]\n", want: false},
		{name: "subject_contains hit", match: "  subject_contains: [OVERDUE]\n", want: true},
		{name: "subject_matches hit", match: "  subject_matches: \"(?i)invoice\\\\s+overdue\"\n", want: true},
		{name: "subject_matches miss", match: "  subject_matches: \"^Receipt\"\n", want: false},
		{name: "body_contains hit", match: "  body_contains: [please pay]\n", want: true},
		{name: "body_contains matches snippet", match: "  body_contains: [overdue]\n", want: true},
		{
			name:  "has_attachments true",
			match: "  has_attachments: true\n",
			want:  true,
		},
		{
			name:  "has_attachments false rejects",
			match: "  has_attachments: false\n",
			want:  false,
		},
		{
			name:  "unread true rejects read email",
			match: "  unread: true\n",
			mut:   func(e *domain.Email) { e.IsRead = true },
			want:  false,
		},
		{name: "unread true passes unread email", match: "  unread: true\n", want: true},
		{
			name:  "to_contains hit",
			match: "  to_contains: [me@mine.example]\n",
			mut: func(e *domain.Email) {
				e.Recipients = []*domain.Recipient{{Kind: domain.RecipientTo, Address: "me@mine.example"}}
			},
			want: true,
		},
		{name: "to_contains miss without recipients", match: "  to_contains: [me@mine.example]\n", want: false},
		{
			name:  "min_size rejects small message",
			match: "  min_size: 1000\n",
			mut:   func(e *domain.Email) { e.SizeBytes = 500 },
			want:  false,
		},
		{
			name:  "size window hit",
			match: "  min_size: 100\n  max_size: 1000\n",
			mut:   func(e *domain.Email) { e.SizeBytes = 500 },
			want:  true,
		},
		{
			name:  "max_size rejects large message",
			match: "  max_size: 100\n",
			mut:   func(e *domain.Email) { e.SizeBytes = 500 },
			want:  false,
		},
		{name: "folder hit case insensitive", match: "  folder: inbox\n", want: true},
		{name: "folder miss", match: "  folder: Archive\n", want: false},
		{name: "label hit", match: "  label: Finance\n", label: "finance", want: true},
		{name: "label miss", match: "  label: travel\n", label: "finance", want: false},
		{
			name:  "all conditions must hold",
			match: "  from_domain: [acme.example]\n  subject_contains: [receipt]\n",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "id: r1\nevent: email_received\n"
			if tt.match != "" {
				src += "match:\n" + tt.match
			}
			src += "actions:\n  - type: star\n"

			m, err := mustCompile(src)
			if err != nil {
				t.Fatalf("compileRule: %v", err)
			}

			e := base()
			if tt.mut != nil {
				tt.mut(e)
			}
			event := &domain.Event{Kind: domain.EventEmailReceived, Email: e, Label: tt.label}
			if got := m.matches(event); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderTemplate(t *testing.T) {
	e := inboxEmail("<m1@example.com>")
	event := &domain.Event{Kind: domain.EventEmailReceived, Email: e, Label: "finance"}
	agent := map[string]any{"summary": "pay by Friday", "amount": 42.5}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"subject", "re: {{subject}}", "re: Invoice overdue"},
		{"from and name", "{{from_name}} <{{from}}>", "Acme Billing <billing@acme.example>"},
		{"snippet", "{{ snippet }}", "Your invoice is overdue."},
		{"label", "tagged {{label}}", "tagged finance"},
		{"agent field", "summary: {{agent.summary}}", "summary: pay by Friday"},
		{"agent numeric field", "amount: {{agent.amount}}", "amount: 42.5"},
		{"unknown field renders empty", "x{{nonsense}}x", "xx"},
		{"unknown agent field renders empty", "x{{agent.missing}}x", "x<nil>x"},
		{"no placeholders", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderTemplate(tt.tmpl, event, agent); got != tt.want {
				t.Errorf("renderTemplate(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}

	// Agent placeholders render empty when no agent ran at all.
	if got := renderTemplate("{{agent.summary}}", event, nil); got != "" {
		t.Errorf("agent placeholder without result = %q, want empty", got)
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want domain.NotificationPriority
	}{
		{"low", domain.PriorityLow},
		{"HIGH", domain.PriorityHigh},
		{"urgent", domain.PriorityUrgent},
		{"", domain.PriorityNormal},
		{"whatever", domain.PriorityNormal},
	}
	for _, tt := range tests {
		if got := parsePriority(tt.in); got != tt.want {
			t.Errorf("parsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHandleSkipsOtherEventKinds(t *testing.T) {
	h := newHarness()
	m, err := mustCompile("id: r1\nevent: email_sent\nactions:\n  - type: star\n")
	if err != nil {
		t.Fatalf("compileRule: %v", err)
	}

	event := &domain.Event{Kind: domain.EventEmailReceived, Email: inboxEmail("<m1@example.com>")}
	if err := m.Handle(context.Background(), event, h.factory.New(m.Config)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.mailbox.starred) != 0 {
		t.Errorf("actions ran for a non-matching event kind: %v", h.mailbox.starred)
	}
}

func TestHandleRunsActions(t *testing.T) {
	h := newHarness()
	e := inboxEmail("<m1@example.com>")
	h.repo.emails[e.MessageID] = e

	m, err := mustCompile(`id: r1
event: email_received
actions:
  - type: mark_read
  - type: add_label
    label: finance
  - type: notify
    message: "filed {{subject}}"
    priority: high
`)
	if err != nil {
		t.Fatalf("compileRule: %v", err)
	}

	event := &domain.Event{Kind: domain.EventEmailReceived, Email: e}
	if err := m.Handle(context.Background(), event, h.factory.New(m.Config)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.mailbox.marked) != 1 || h.mailbox.marked[0] != "read=true" {
		t.Errorf("mark_read not applied remotely: %v", h.mailbox.marked)
	}
	if len(h.mailbox.labeled) != 1 || h.mailbox.labeled[0] != "finance=true" {
		t.Errorf("add_label not applied remotely: %v", h.mailbox.labeled)
	}
	if len(h.realtime.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.realtime.notifications))
	}
	n := h.realtime.notifications[0]
	if n.Message != "filed Invoice overdue" {
		t.Errorf("notification message = %q", n.Message)
	}
	if n.Priority != domain.PriorityHigh {
		t.Errorf("notification priority = %q", n.Priority)
	}
	if n.ListenerID != "r1" {
		t.Errorf("notification listener id = %q", n.ListenerID)
	}
	if n.MessageID != e.MessageID {
		t.Errorf("notification message id = %q", n.MessageID)
	}
}

func TestHandleActionFailureWrapsListenerError(t *testing.T) {
	h := newHarness()
	h.mailbox.failOps = true
	e := inboxEmail("<m1@example.com>")
	h.repo.emails[e.MessageID] = e

	m, err := mustCompile("id: flaky\nevent: email_received\nactions:\n  - type: archive\n")
	if err != nil {
		t.Fatalf("compileRule: %v", err)
	}

	event := &domain.Event{Kind: domain.EventEmailReceived, Email: e}
	err = m.Handle(context.Background(), event, h.factory.New(m.Config))
	if err == nil {
		t.Fatal("expected action failure to surface")
	}
	if !strings.Contains(err.Error(), "flaky") {
		t.Errorf("error should name the listener: %v", err)
	}
}

func TestHandleAgentGate(t *testing.T) {
	src := `id: triage
event: email_received
agent:
  prompt: "Is this urgent? {{subject}}"
  model: haiku
  when: urgent
  schema:
    properties:
      urgent: {type: boolean}
      summary: {type: string}
actions:
  - type: star
  - type: notify
    message: "urgent: {{agent.summary}}"
`

	t.Run("gate false suppresses actions", func(t *testing.T) {
		h := newHarness()
		h.agent.result = map[string]any{"urgent": false, "summary": "routine"}
		e := inboxEmail("<m1@example.com>")
		h.repo.emails[e.MessageID] = e

		m, err := mustCompile(src)
		if err != nil {
			t.Fatalf("compileRule: %v", err)
		}
		event := &domain.Event{Kind: domain.EventEmailReceived, Email: e}
		if err := m.Handle(context.Background(), event, h.factory.New(m.Config)); err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if len(h.agent.calls) != 1 {
			t.Fatalf("agent calls = %d, want 1", len(h.agent.calls))
		}
		if got := h.agent.calls[0].Prompt; got != "Is this urgent? Invoice overdue" {
			t.Errorf("prompt not rendered: %q", got)
		}
		if h.agent.calls[0].Model != "haiku" {
			t.Errorf("model = %q", h.agent.calls[0].Model)
		}
		if len(h.mailbox.starred) != 0 || len(h.realtime.notifications) != 0 {
			t.Error("actions ran despite a false gate")
		}
	})

	t.Run("gate true runs actions with agent fields", func(t *testing.T) {
		h := newHarness()
		h.agent.result = map[string]any{"urgent": true, "summary": "pay today"}
		e := inboxEmail("<m1@example.com>")
		h.repo.emails[e.MessageID] = e

		m, err := mustCompile(src)
		if err != nil {
			t.Fatalf("compileRule: %v", err)
		}
		event := &domain.Event{Kind: domain.EventEmailReceived, Email: e}
		if err := m.Handle(context.Background(), event, h.factory.New(m.Config)); err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if len(h.mailbox.starred) != 1 {
			t.Errorf("star not applied: %v", h.mailbox.starred)
		}
		if len(h.realtime.notifications) != 1 {
			t.Fatalf("notifications = %d, want 1", len(h.realtime.notifications))
		}
		if got := h.realtime.notifications[0].Message; got != "urgent: pay today" {
			t.Errorf("notification message = %q", got)
		}
	})

	t.Run("agent failure surfaces as listener error", func(t *testing.T) {
		h := newHarness()
		h.agent.err = context.DeadlineExceeded
		e := inboxEmail("<m1@example.com>")
		h.repo.emails[e.MessageID] = e

		m, err := mustCompile(src)
		if err != nil {
			t.Fatalf("compileRule: %v", err)
		}
		event := &domain.Event{Kind: domain.EventEmailReceived, Email: e}
		err = m.Handle(context.Background(), event, h.factory.New(m.Config))
		if err == nil {
			t.Fatal("expected agent failure to surface")
		}
		if len(h.mailbox.starred) != 0 {
			t.Error("actions ran after an agent failure")
		}
	})
}
