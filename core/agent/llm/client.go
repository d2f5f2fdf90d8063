package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"mailflow/core/domain"
	"mailflow/core/port/out"
	"mailflow/pkg/apperr"
	"mailflow/pkg/logger"
)

// Client is the structured-output gateway to the language model. Listener
// agents address models by alias (haiku, sonnet, opus); the gateway maps
// each alias to a concrete model name and requests JSON-object output.
type Client struct {
	client      *openai.Client
	models      map[string]string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	cb          *gobreaker.CircuitBreaker
}

type ClientConfig struct {
	APIKey      string
	BaseURL     string
	ModelHaiku  string
	ModelSonnet string
	ModelOpus   string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 2048
	defaultTimeout   = 60 * time.Second
)

func NewClient(cfg ClientConfig) *Client {
	occ := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		occ.BaseURL = cfg.BaseURL
	}

	models := map[string]string{
		"haiku":  cfg.ModelHaiku,
		"sonnet": cfg.ModelSonnet,
		"opus":   cfg.ModelOpus,
	}
	for alias, model := range models {
		if model == "" {
			models[alias] = defaultModel
		}
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	cbSettings := gobreaker.Settings{
		Name:        "llm-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &Client{
		client:      openai.NewClientWithConfig(occ),
		models:      models,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// CallAgent sends one structured-output request and returns the decoded
// object after validating it against the call's schema.
func (c *Client) CallAgent(ctx context.Context, call *out.AgentCall) (map[string]any, error) {
	if call == nil || call.Schema == nil {
		return nil, apperr.InvalidInput("schema", "agent call requires a schema")
	}

	alias := call.Model
	if alias == "" {
		alias = "haiku"
	}
	model, ok := c.models[alias]
	if !ok {
		return nil, apperr.InvalidInput("model", fmt.Sprintf("unknown model alias: %s", call.Model))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.completeJSON(ctx, model, call.Prompt, call.Schema)
	if err != nil {
		return nil, err
	}

	result, err := decodeObject(raw)
	if err != nil {
		return nil, apperr.ExternalError("llm", err).WithDetail("response", truncate(raw, 500))
	}
	if err := validateAgainstSchema(result, call.Schema); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) completeJSON(ctx context.Context, model, prompt string, schema *domain.AgentSchema) (string, error) {
	system := systemPrompt(schema)

	out, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       model,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: system,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "{}", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", apperr.ExternalError("llm", err)
	}

	return out.(string), nil
}

// systemPrompt renders the schema into completion instructions. The JSON
// response format guarantees an object; the schema text pins its shape.
func systemPrompt(schema *domain.AgentSchema) string {
	var b strings.Builder
	b.WriteString("You analyze emails and respond with a single JSON object.\n")
	b.WriteString("The object must have exactly these properties:\n")
	for name, prop := range schema.Properties {
		b.WriteString(fmt.Sprintf("  %q: %s", name, prop.Type))
		if prop.Description != "" {
			b.WriteString(" - " + prop.Description)
		}
		b.WriteString("\n")
	}
	if len(schema.Required) > 0 {
		b.WriteString("Required properties: " + strings.Join(schema.Required, ", ") + "\n")
	}
	b.WriteString("Respond with the JSON object only, no prose.")
	return b.String()
}

func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to parse agent response: %w", err)
	}
	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
