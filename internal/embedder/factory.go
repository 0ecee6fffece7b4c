package embedder

import (
	"fmt"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// New creates an Embedder from configuration. Supported providers:
// "openai" (any OpenAI-compatible endpoint), "ollama", "mock".
func New(cfg Config) (Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		return NewOllamaEmbedder(cfg)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, types.NewError(types.PROVIDER_NOT_FOUND,
			fmt.Sprintf("unknown embedder provider %q", cfg.Provider))
	}
}
