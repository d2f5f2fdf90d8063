// Package listener loads declarative rule files and dispatches mailbox
// events to them.
package listener

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mailflow/core/domain"
	"mailflow/pkg/apperr"
)

// ruleFile is the on-disk YAML shape of one listener.
type ruleFile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
	Event       string `yaml:"event"`
	Schedule    string `yaml:"schedule"`

	Match   *matchSpec   `yaml:"match"`
	Agent   *agentSpec   `yaml:"agent"`
	Actions []actionSpec `yaml:"actions"`
}

type matchSpec struct {
	FromContains    []string `yaml:"from_contains"`
	FromDomain      []string `yaml:"from_domain"`
	ToContains      []string `yaml:"to_contains"`
	SubjectContains []string `yaml:"subject_contains"`
	SubjectMatches  string   `yaml:"subject_matches"`
	BodyContains    []string `yaml:"body_contains"`
	HasAttachments  *bool    `yaml:"has_attachments"`
	Unread          *bool    `yaml:"unread"`
	MinSize         int64    `yaml:"min_size"`
	MaxSize         int64    `yaml:"max_size"`
	Folder          string   `yaml:"folder"`
	Label           string   `yaml:"label"`
}

type agentSpec struct {
	Prompt string             `yaml:"prompt"`
	Model  string             `yaml:"model"`
	Schema domain.AgentSchema `yaml:"schema"`
	When   string             `yaml:"when"`
}

type actionSpec struct {
	Type     string `yaml:"type"`
	Label    string `yaml:"label"`
	Message  string `yaml:"message"`
	Priority string `yaml:"priority"`
}

var knownActions = map[string]bool{
	"archive":      true,
	"star":         true,
	"unstar":       true,
	"mark_read":    true,
	"mark_unread":  true,
	"add_label":    true,
	"remove_label": true,
	"notify":       true,
}

var knownModels = map[string]bool{"": true, "haiku": true, "sonnet": true, "opus": true}

// Module is one compiled listener: its declared config plus the
// executable rule.
type Module struct {
	Config domain.ListenerConfig
	Path   string

	match     *matchSpec
	subjectRe *regexp.Regexp
	agent     *agentSpec
	actions   []actionSpec
}

// compileRule parses and validates one rule file.
func compileRule(path, source string, data []byte) (*Module, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, apperr.ValidationFailed("rule yaml: " + err.Error())
	}

	if rf.ID == "" {
		return nil, apperr.MissingField("id")
	}
	if rf.Name == "" {
		rf.Name = rf.ID
	}
	if !domain.ValidEventKind(rf.Event) {
		return nil, apperr.InvalidInput("event", fmt.Sprintf("unknown event %q", rf.Event))
	}
	if domain.EventKind(rf.Event) == domain.EventScheduledTime {
		if rf.Schedule == "" {
			return nil, apperr.MissingField("schedule")
		}
		if _, err := time.ParseDuration(rf.Schedule); err != nil {
			return nil, apperr.InvalidInput("schedule", err.Error())
		}
	}
	if len(rf.Actions) == 0 && rf.Agent == nil {
		return nil, apperr.ValidationFailed("rule declares neither actions nor an agent")
	}

	m := &Module{
		Config: domain.ListenerConfig{
			ID:          rf.ID,
			Name:        rf.Name,
			Description: rf.Description,
			Enabled:     rf.Enabled == nil || *rf.Enabled,
			Event:       domain.EventKind(rf.Event),
			Schedule:    rf.Schedule,
			Source:      source,
			LoadedAt:    time.Now().UTC(),
		},
		Path:    path,
		match:   rf.Match,
		agent:   rf.Agent,
		actions: rf.Actions,
	}

	if rf.Match != nil && rf.Match.SubjectMatches != "" {
		re, err := regexp.Compile(rf.Match.SubjectMatches)
		if err != nil {
			return nil, apperr.InvalidInput("match.subject_matches", err.Error())
		}
		m.subjectRe = re
	}

	if rf.Agent != nil {
		if rf.Agent.Prompt == "" {
			return nil, apperr.MissingField("agent.prompt")
		}
		if !knownModels[rf.Agent.Model] {
			return nil, apperr.InvalidInput("agent.model", fmt.Sprintf("unknown model alias %q", rf.Agent.Model))
		}
		if len(rf.Agent.Schema.Properties) == 0 {
			return nil, apperr.MissingField("agent.schema.properties")
		}
		if rf.Agent.When != "" {
			prop, ok := rf.Agent.Schema.Properties[rf.Agent.When]
			if !ok {
				return nil, apperr.InvalidInput("agent.when", "references a field missing from the schema")
			}
			if prop.Type != "boolean" {
				return nil, apperr.InvalidInput("agent.when", "gate field must be boolean")
			}
		}
	}

	for i, action := range rf.Actions {
		if !knownActions[action.Type] {
			return nil, apperr.InvalidInput("actions", fmt.Sprintf("unknown action %q", action.Type))
		}
		switch action.Type {
		case "add_label", "remove_label":
			if action.Label == "" {
				return nil, apperr.MissingField(fmt.Sprintf("actions[%d].label", i))
			}
		case "notify":
			if action.Message == "" {
				return nil, apperr.MissingField(fmt.Sprintf("actions[%d].message", i))
			}
		}
	}

	return m, nil
}

// Handle runs the rule against one event. Returning nil means the rule
// either matched and completed or simply did not apply.
func (m *Module) Handle(ctx context.Context, event *domain.Event, lctx *Context) error {
	if event.Kind != m.Config.Event {
		return nil
	}
	if event.Email != nil && !m.matches(event) {
		return nil
	}

	var agentResult map[string]any
	if m.agent != nil && event.Email != nil {
		prompt := renderTemplate(m.agent.Prompt, event, nil)
		result, err := lctx.CallAgent(ctx, prompt, &m.agent.Schema, m.agent.Model)
		if err != nil {
			return apperr.ListenerError(m.Config.ID, err)
		}
		agentResult = result

		if m.agent.When != "" {
			gate, _ := agentResult[m.agent.When].(bool)
			if !gate {
				return nil
			}
		}
	}

	for _, action := range m.actions {
		if err := m.runAction(ctx, action, event, agentResult, lctx); err != nil {
			return apperr.ListenerError(m.Config.ID, err)
		}
	}
	return nil
}

func (m *Module) runAction(ctx context.Context, action actionSpec, event *domain.Event, agentResult map[string]any, lctx *Context) error {
	email := event.Email

	switch action.Type {
	case "archive":
		return lctx.ArchiveEmail(ctx, email)
	case "star":
		return lctx.StarEmail(ctx, email, true)
	case "unstar":
		return lctx.StarEmail(ctx, email, false)
	case "mark_read":
		return lctx.MarkRead(ctx, email, true)
	case "mark_unread":
		return lctx.MarkRead(ctx, email, false)
	case "add_label":
		return lctx.AddLabel(ctx, email, action.Label)
	case "remove_label":
		return lctx.RemoveLabel(ctx, email, action.Label)
	case "notify":
		message := renderTemplate(action.Message, event, agentResult)
		lctx.Notify(message, parsePriority(action.Priority), email)
		return nil
	}
	return nil
}

func (m *Module) matches(event *domain.Event) bool {
	if m.match == nil {
		return true
	}
	email := event.Email
	spec := m.match

	if spec.Label != "" && !strings.EqualFold(spec.Label, event.Label) {
		return false
	}
	if spec.Folder != "" && !strings.EqualFold(spec.Folder, email.Folder) {
		return false
	}
	if spec.HasAttachments != nil && email.HasAttachments() != *spec.HasAttachments {
		return false
	}
	if spec.Unread != nil && email.IsRead == *spec.Unread {
		return false
	}
	if spec.MinSize > 0 && email.SizeBytes < spec.MinSize {
		return false
	}
	if spec.MaxSize > 0 && email.SizeBytes > spec.MaxSize {
		return false
	}

	from := strings.ToLower(email.FromAddress + " " + email.FromName)
	if len(spec.FromContains) > 0 && !containsAny(from, spec.FromContains) {
		return false
	}
	if len(spec.FromDomain) > 0 {
		domainMatch := false
		for _, d := range spec.FromDomain {
			if strings.EqualFold(d, email.SenderDomain()) {
				domainMatch = true
				break
			}
		}
		if !domainMatch {
			return false
		}
	}

	if len(spec.ToContains) > 0 {
		var to strings.Builder
		for _, r := range email.Recipients {
			to.WriteString(strings.ToLower(r.Address + " " + r.Name + " "))
		}
		if !containsAny(to.String(), spec.ToContains) {
			return false
		}
	}

	subject := strings.ToLower(email.Subject)
	if len(spec.SubjectContains) > 0 && !containsAny(subject, spec.SubjectContains) {
		return false
	}
	if m.subjectRe != nil && !m.subjectRe.MatchString(email.Subject) {
		return false
	}

	if len(spec.BodyContains) > 0 {
		body := strings.ToLower(email.BodyText + " " + email.Snippet)
		if !containsAny(body, spec.BodyContains) {
			return false
		}
	}

	return true
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func parsePriority(s string) domain.NotificationPriority {
	switch strings.ToLower(s) {
	case "low":
		return domain.PriorityLow
	case "high":
		return domain.PriorityHigh
	case "urgent":
		return domain.PriorityUrgent
	default:
		return domain.PriorityNormal
	}
}

// templateVar matches {{name}} and {{agent.name}} placeholders.
var templateVar = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// renderTemplate substitutes event and agent fields into a message or
// prompt template. Unknown placeholders render empty.
func renderTemplate(tmpl string, event *domain.Event, agentResult map[string]any) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(raw string) string {
		name := templateVar.FindStringSubmatch(raw)[1]

		if field, ok := strings.CutPrefix(name, "agent."); ok {
			if agentResult == nil {
				return ""
			}
			return fmt.Sprintf("%v", agentResult[field])
		}

		email := event.Email
		if email == nil {
			return ""
		}
		switch name {
		case "subject":
			return email.Subject
		case "from":
			return email.FromAddress
		case "from_name":
			return email.FromName
		case "snippet":
			return email.Snippet
		case "body":
			return email.BodyText
		case "message_id":
			return email.MessageID
		case "folder":
			return email.Folder
		case "label":
			return event.Label
		}
		return ""
	})
}
