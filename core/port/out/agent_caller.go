package out

import (
	"context"

	"mailflow/core/domain"
)

// AgentCall is one structured-output request to the language model.
// Model is an alias (haiku, sonnet, opus); the gateway resolves it to a
// concrete model name.
type AgentCall struct {
	Prompt string
	Schema *domain.AgentSchema
	Model  string
}

// AgentCaller is the outbound port to the language model gateway. The
// returned map conforms to the call's schema: required keys present,
// declared types respected.
type AgentCaller interface {
	CallAgent(ctx context.Context, call *AgentCall) (map[string]any, error)
}
