// Package embedder provides embedding generation for entity and query text.
package embedder

import (
	"context"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Embedder generates embedding vectors from text.
// Implementations must be thread-safe for concurrent access.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	// Empty or whitespace-only text yields an empty vector without a
	// provider call.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch generates embeddings for multiple texts in one provider
	// round trip where the backend supports it. The result has one vector
	// per input, in input order; empty inputs yield empty vectors.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimensionality of embedding vectors, or 0 if
	// the provider does not declare it.
	Dimensions() int

	// Model returns the name of the embedding model being used.
	Model() string

	// Health returns the health status of the embedder.
	Health(ctx context.Context) types.HealthStatus
}

// Config holds configuration for embedding providers.
type Config struct {
	// Provider selects the implementation: "openai", "ollama", or "mock".
	// "openai" covers any OpenAI-compatible endpoint (LM Studio, gateways)
	// via BaseURL.
	Provider string `yaml:"provider"`

	// Model is the embedding model name (e.g. "nomic-embed-text",
	// "text-embedding-3-small").
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. Local gateways usually
	// accept any non-empty value.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url"`

	// Dimensions declares the expected vector width. Used to size the
	// entity store; 0 means take whatever the provider returns.
	Dimensions int `yaml:"dimensions"`
}

// Validate checks the Config for structural problems.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return types.NewError(types.INVALID_CONFIG, "embedder provider cannot be empty")
	}
	if c.Provider != "mock" && c.Model == "" {
		return types.NewError(types.INVALID_CONFIG, "embedder model cannot be empty")
	}
	if c.Dimensions < 0 {
		return types.NewError(types.INVALID_CONFIG, "embedder dimensions cannot be negative")
	}
	return nil
}

// DefaultConfig returns the configuration for a local OpenAI-compatible
// embedding endpoint.
func DefaultConfig() Config {
	return Config{
		Provider:   "openai",
		Model:      "nomic-embed-text",
		BaseURL:    "http://localhost:1234/v1",
		APIKey:     "local",
		Dimensions: 768,
	}
}
