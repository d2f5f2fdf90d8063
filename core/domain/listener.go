package domain

import "time"

// ListenerConfig is the declared identity of one listener rule.
// Schedule is only meaningful for scheduled_time listeners and holds an
// interval expression such as "15m" or "1h".
type ListenerConfig struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	Event       EventKind `json:"event"`
	Schedule    string    `json:"schedule,omitempty"`
	Source      string    `json:"source,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// RegistryStats summarizes the live listener registry.
type RegistryStats struct {
	Total    int            `json:"total"`
	Enabled  int            `json:"enabled"`
	Disabled int            `json:"disabled"`
	ByEvent  map[string]int `json:"by_event"`
	Failed   []string       `json:"failed,omitempty"`
}

// AgentProperty is one field of a structured-output schema.
type AgentProperty struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// AgentSchema declares the JSON object an agent call must return.
type AgentSchema struct {
	Properties map[string]AgentProperty `json:"properties" yaml:"properties"`
	Required   []string                 `json:"required,omitempty" yaml:"required,omitempty"`
}
