package embedder

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms/openai"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// OpenAIEmbedder generates embeddings through any OpenAI-compatible
// embeddings API (OpenAI itself, LM Studio, or a gateway) via langchaingo.
type OpenAIEmbedder struct {
	client *openai.LLM
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder against the configured endpoint.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.EMBEDDER_FAILED, "failed to create embedding client", err)
	}

	return &OpenAIEmbedder{client: client, model: cfg.Model, dims: cfg.Dimensions}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one API call. Empty inputs are skipped
// on the wire and come back as empty vectors in their original positions.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	result := make([][]float64, len(texts))

	indices := make([]int, 0, len(texts))
	payload := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			result[i] = []float64{}
			continue
		}
		indices = append(indices, i)
		payload = append(payload, t)
	}
	if len(payload) == 0 {
		return result, nil
	}

	vectors, err := e.client.CreateEmbedding(ctx, payload)
	if err != nil {
		return nil, types.WrapRetryableError(types.EMBEDDER_FAILED, "embedding request failed", err)
	}
	if len(vectors) != len(payload) {
		return nil, types.NewError(types.EMBEDDER_FAILED, "embedding response count does not match request")
	}

	for k, idx := range indices {
		vec := make([]float64, len(vectors[k]))
		for j, v := range vectors[k] {
			vec[j] = float64(v)
		}
		result[idx] = vec
	}
	return result, nil
}

// Dimensions returns the configured vector width.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Health probes the endpoint with a minimal embedding request.
func (e *OpenAIEmbedder) Health(ctx context.Context) types.HealthStatus {
	if _, err := e.client.CreateEmbedding(ctx, []string{"ping"}); err != nil {
		return types.Unhealthy("embedding endpoint unreachable: " + err.Error())
	}
	return types.Healthy("embedding endpoint reachable (model: " + e.model + ")")
}
