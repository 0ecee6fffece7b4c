package llm

import (
	"fmt"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// New creates a Provider from configuration. Supported providers:
// "openai" (any OpenAI-compatible endpoint), "ollama", "mock".
func New(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "ollama":
		return NewOllamaProvider(cfg)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, types.NewError(types.PROVIDER_NOT_FOUND,
			fmt.Sprintf("unknown llm provider %q", cfg.Provider))
	}
}
