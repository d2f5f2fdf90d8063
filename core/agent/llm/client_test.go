package llm

import (
	"context"
	"strings"
	"testing"

	"mailflow/core/domain"
	"mailflow/core/port/out"
)

func TestNewClientModelAliases(t *testing.T) {
	c := NewClient(ClientConfig{
		APIKey:     "test-key",
		ModelHaiku: "small-model-v1",
		ModelOpus:  "big-model-v1",
	})

	if got := c.models["haiku"]; got != "small-model-v1" {
		t.Errorf("haiku = %q", got)
	}
	if got := c.models["opus"]; got != "big-model-v1" {
		t.Errorf("opus = %q", got)
	}
	if got := c.models["sonnet"]; got != defaultModel {
		t.Errorf("unconfigured alias should fall back to %q, got %q", defaultModel, got)
	}
	if c.maxTokens != defaultMaxTokens {
		t.Errorf("maxTokens = %d", c.maxTokens)
	}
	if c.timeout != defaultTimeout {
		t.Errorf("timeout = %v", c.timeout)
	}
}

func TestCallAgentRejectsBadCalls(t *testing.T) {
	c := NewClient(ClientConfig{APIKey: "test-key"})
	schema := &domain.AgentSchema{
		Properties: map[string]domain.AgentProperty{"urgent": {Type: "boolean"}},
	}

	if _, err := c.CallAgent(context.Background(), &out.AgentCall{Prompt: "p"}); err == nil {
		t.Error("call without a schema should fail")
	}

	_, err := c.CallAgent(context.Background(), &out.AgentCall{
		Prompt: "p",
		Schema: schema,
		Model:  "gpt-9",
	})
	if err == nil {
		t.Fatal("unknown model alias should fail")
	}
	if !strings.Contains(err.Error(), "gpt-9") {
		t.Errorf("error should name the alias: %v", err)
	}
}
