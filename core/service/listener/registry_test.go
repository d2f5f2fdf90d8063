package listener

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mailflow/core/domain"
	"mailflow/pkg/apperr"
	"mailflow/pkg/logger"
)

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	log := logger.New(logger.Config{Level: logger.LevelError})
	return NewRegistry(dir, log), dir
}

func TestRegistryLoadAll(t *testing.T) {
	reg, dir := newTestRegistry(t)

	writeRule(t, dir, "star-invoices.yaml", `id: star-invoices
event: email_received
match:
  subject_contains: [invoice]
actions:
  - type: star
`)
	writeRule(t, dir, "digest.yml", `id: digest
enabled: false
event: scheduled_time
schedule: 24h
actions:
  - type: notify
    message: daily digest
`)
	writeRule(t, dir, "broken.yaml", "id: [this is not\n  a scalar\n")
	writeRule(t, dir, "no-id.yaml", "event: email_received\nactions:\n  - type: star\n")
	writeRule(t, dir, ".hidden.yaml", "id: hidden\nevent: email_received\nactions:\n  - type: star\n")
	writeRule(t, dir, "notes.txt", "not a rule at all")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := reg.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if _, ok := reg.Get("star-invoices"); !ok {
		t.Error("star-invoices should be loaded")
	}
	if _, ok := reg.Get("digest"); !ok {
		t.Error("disabled listeners are still loaded")
	}
	if _, ok := reg.Get("hidden"); ok {
		t.Error("dotfiles must be skipped")
	}

	stats := reg.Stats()
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.Enabled != 1 || stats.Disabled != 1 {
		t.Errorf("Enabled/Disabled = %d/%d, want 1/1", stats.Enabled, stats.Disabled)
	}
	if stats.ByEvent["email_received"] != 1 || stats.ByEvent["scheduled_time"] != 1 {
		t.Errorf("ByEvent = %v", stats.ByEvent)
	}
	wantFailed := []string{"broken.yaml", "no-id.yaml"}
	if len(stats.Failed) != len(wantFailed) {
		t.Fatalf("Failed = %v, want %v", stats.Failed, wantFailed)
	}
	for i, name := range wantFailed {
		if stats.Failed[i] != name {
			t.Errorf("Failed[%d] = %q, want %q", i, stats.Failed[i], name)
		}
	}
}

func TestRegistryDuplicateID(t *testing.T) {
	reg, dir := newTestRegistry(t)

	rule := "id: same\nevent: email_received\nactions:\n  - type: star\n"
	writeRule(t, dir, "a.yaml", rule)
	writeRule(t, dir, "b.yaml", rule)

	if err := reg.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	m, ok := reg.Get("same")
	if !ok {
		t.Fatal("one of the duplicates should have loaded")
	}
	if m.Config.Source != "a.yaml" {
		t.Errorf("first file in directory order should win, got %q", m.Config.Source)
	}

	stats := reg.Stats()
	if len(stats.Failed) != 1 || stats.Failed[0] != "b.yaml" {
		t.Fatalf("Failed = %v, want [b.yaml]", stats.Failed)
	}
	reg.mu.RLock()
	reason := reg.failed["b.yaml"]
	reg.mu.RUnlock()
	if !strings.Contains(reason, "duplicate id") || !strings.Contains(reason, "a.yaml") {
		t.Errorf("failure reason = %q", reason)
	}
}

func TestRegistryReloadReplacesView(t *testing.T) {
	reg, dir := newTestRegistry(t)

	var snapshots [][]*domain.ListenerConfig
	reg.OnChange(func(configs []*domain.ListenerConfig) {
		snapshots = append(snapshots, configs)
	})

	writeRule(t, dir, "a.yaml", "id: first\nevent: email_received\nactions:\n  - type: star\n")
	if err := reg.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "a.yaml")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	writeRule(t, dir, "b.yaml", "id: second\nevent: email_sent\nactions:\n  - type: mark_read\n")
	if err := reg.LoadAll(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, ok := reg.Get("first"); ok {
		t.Error("removed rule survived the reload")
	}
	if _, ok := reg.Get("second"); !ok {
		t.Error("new rule missing after reload")
	}

	if len(snapshots) != 2 {
		t.Fatalf("onChange fired %d times, want 2", len(snapshots))
	}
	if len(snapshots[0]) != 1 || snapshots[0][0].ID != "first" {
		t.Errorf("first snapshot = %+v", snapshots[0])
	}
	if len(snapshots[1]) != 1 || snapshots[1][0].ID != "second" {
		t.Errorf("second snapshot = %+v", snapshots[1])
	}
}

func TestRegistryModulesForOrderAndFilter(t *testing.T) {
	reg, dir := newTestRegistry(t)

	writeRule(t, dir, "z.yaml", "id: zeta\nevent: email_received\nactions:\n  - type: star\n")
	writeRule(t, dir, "a.yaml", "id: alpha\nevent: email_received\nactions:\n  - type: star\n")
	writeRule(t, dir, "off.yaml", "id: off\nenabled: false\nevent: email_received\nactions:\n  - type: star\n")
	writeRule(t, dir, "other.yaml", "id: other\nevent: email_archived\nactions:\n  - type: mark_read\n")

	if err := reg.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	modules := reg.ModulesFor(domain.EventEmailReceived)
	if len(modules) != 2 {
		t.Fatalf("ModulesFor returned %d modules, want 2", len(modules))
	}
	if modules[0].Config.ID != "alpha" || modules[1].Config.ID != "zeta" {
		t.Errorf("order = [%s %s], want [alpha zeta]", modules[0].Config.ID, modules[1].Config.ID)
	}

	all := reg.All()
	if len(all) != 4 {
		t.Errorf("All() = %d configs, want 4", len(all))
	}
}

func TestRegistrySource(t *testing.T) {
	reg, dir := newTestRegistry(t)

	raw := "id: r1\nevent: email_received\nactions:\n  - type: star\n"
	writeRule(t, dir, "r1.yaml", raw)
	if err := reg.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	got, err := reg.Source("r1")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if got != raw {
		t.Errorf("Source = %q, want %q", got, raw)
	}

	if _, err := reg.Source("ghost"); !apperr.IsNotFound(err) {
		t.Errorf("Source for unknown id = %v, want not found", err)
	}
}

func TestRegistryMissingDir(t *testing.T) {
	log := logger.New(logger.Config{Level: logger.LevelError})
	reg := NewRegistry("/nonexistent/listeners", log)
	if err := reg.LoadAll(); err == nil {
		t.Fatal("LoadAll should fail for a missing directory")
	}
}

func TestIsRuleFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"rule.yaml", true},
		{"rule.yml", true},
		{"rule.YAML", true},
		{".rule.yaml", false},
		{"_draft.yaml", false},
		{"_rule.yml", false},
		{"rule.yaml.bak", false},
		{"rule.json", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		if got := isRuleFile(tt.name); got != tt.want {
			t.Errorf("isRuleFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
