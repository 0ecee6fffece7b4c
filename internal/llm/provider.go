// Package llm abstracts chat completion providers behind a single
// interface with synchronous and streaming entry points.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Roles a message can carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system-role message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user-role message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant-role message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Request is one completion request.
type Request struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Validate checks the request shape.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return types.NewError(types.INVALID_QUERY, "completion request requires at least one message")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return types.NewError(types.INVALID_QUERY,
				fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
		if strings.TrimSpace(m.Content) == "" {
			return types.NewError(types.INVALID_QUERY, "message content cannot be empty")
		}
	}
	return nil
}

// Response is one completed (non-streaming) completion.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// StreamChunk is one streamed delta. Exactly one of Content or Err is set
// per chunk; the channel closes after the final chunk.
type StreamChunk struct {
	Content string
	Err     error
}

// Provider is a chat completion backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Complete runs one synchronous completion.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream runs one streaming completion. The returned channel closes
	// when the completion ends; a chunk with Err set reports a mid-stream
	// failure and is the last chunk.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Health probes the backend with a minimal completion.
	Health(ctx context.Context) types.HealthStatus
}

// Config selects and configures a provider.
type Config struct {
	Provider    string  `yaml:"provider" json:"provider"`
	Model       string  `yaml:"model" json:"model"`
	APIKey      string  `yaml:"api_key" json:"api_key"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
}

// DefaultConfig targets a local OpenAI-compatible server.
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		BaseURL:     "http://localhost:1234/v1",
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return types.NewError(types.INVALID_CONFIG, "llm provider cannot be empty")
	}
	if c.Provider != "mock" && c.Model == "" {
		return types.NewError(types.INVALID_CONFIG, "llm model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return types.NewError(types.INVALID_CONFIG, "llm temperature must be within [0, 2]")
	}
	return nil
}
