package llm

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// LangchainProvider adapts any langchaingo model to the Provider contract.
// The openai backend covers the OpenAI API and every compatible local
// server; the ollama backend talks to a local Ollama daemon.
type LangchainProvider struct {
	model  llms.Model
	name   string
	config Config
}

// NewOpenAIProvider creates a provider for OpenAI-compatible endpoints.
func NewOpenAIProvider(cfg Config) (*LangchainProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if apiKey != "" {
		opts = append(opts, openai.WithToken(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.COMPLETION_FAILED, "failed to create openai client", err)
	}
	return &LangchainProvider{model: client, name: "openai", config: cfg}, nil
}

// NewOllamaProvider creates a provider for a local Ollama daemon.
func NewOllamaProvider(cfg Config) (*LangchainProvider, error) {
	opts := []ollama.Option{
		ollama.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.COMPLETION_FAILED, "failed to create ollama client", err)
	}
	return &LangchainProvider{model: client, name: "ollama", config: cfg}, nil
}

// Name returns the provider name.
func (p *LangchainProvider) Name() string {
	return p.name
}

func (p *LangchainProvider) callOptions(req Request) []llms.CallOption {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.config.Temperature
	}

	var opts []llms.CallOption
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	opts = append(opts, llms.WithTemperature(temperature))
	return opts
}

// Complete runs one synchronous completion.
func (p *LangchainProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := p.model.GenerateContent(ctx, toLangchainMessages(req.Messages), p.callOptions(req)...)
	if err != nil {
		return nil, types.WrapRetryableError(types.COMPLETION_FAILED, "completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.COMPLETION_FAILED, "provider returned no choices")
	}
	return &Response{Content: resp.Choices[0].Content, Model: p.config.Model}, nil
}

// Stream runs one streaming completion, forwarding deltas on the returned
// channel.
func (p *LangchainProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 16)
	opts := append(p.callOptions(req),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunks <- StreamChunk{Content: string(chunk)}:
				return nil
			}
		}),
	)

	go func() {
		defer close(chunks)
		_, err := p.model.GenerateContent(ctx, toLangchainMessages(req.Messages), opts...)
		if err != nil {
			chunks <- StreamChunk{Err: types.WrapRetryableError(types.COMPLETION_FAILED, "stream failed", err)}
		}
	}()
	return chunks, nil
}

// Health probes the backend with a one-token completion.
func (p *LangchainProvider) Health(ctx context.Context) types.HealthStatus {
	_, err := p.Complete(ctx, Request{
		Messages:  []Message{NewUserMessage("ping")},
		MaxTokens: 1,
	})
	if err != nil {
		return types.Unhealthy(err.Error())
	}
	return types.Healthy(p.name + " provider operational")
}

func toLangchainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}
