package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// MockEmbedder is a deterministic in-process embedder for tests and offline
// development. Vectors are derived from a hash of the input text, so
// identical text always maps to the identical vector and distinct texts are
// near-orthogonal.
type MockEmbedder struct {
	mu    sync.Mutex
	dims  int
	calls int

	// FailNext makes the next call return a retryable EMBEDDER_FAILED
	// error, for exercising degraded paths.
	FailNext bool

	// Fixed overrides the derived vector for specific texts, letting tests
	// control similarity ordering.
	Fixed map[string][]float64
}

// NewMockEmbedder creates a mock embedder with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 8
	}
	return &MockEmbedder{dims: dims, Fixed: make(map[string][]float64)}
}

// Embed derives a deterministic unit vector from the text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch derives one vector per input.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.WrapError(types.EMBEDDER_FAILED, "context done", err)
	}

	m.mu.Lock()
	m.calls++
	if m.FailNext {
		m.FailNext = false
		m.mu.Unlock()
		return nil, types.NewRetryableError(types.EMBEDDER_FAILED, "mock embedder failure injected")
	}
	fixed := make(map[string][]float64, len(m.Fixed))
	for k, v := range m.Fixed {
		fixed[k] = v
	}
	m.mu.Unlock()

	result := make([][]float64, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			result[i] = []float64{}
			continue
		}
		if v, ok := fixed[t]; ok {
			result[i] = v
			continue
		}
		result[i] = m.derive(t)
	}
	return result, nil
}

// derive hashes the text into a unit-length vector.
func (m *MockEmbedder) derive(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, m.dims)
	var norm float64
	for i := 0; i < m.dims; i++ {
		// Re-hash per block so dims > 4 stay well distributed.
		block := sha256.Sum256(append(sum[:], byte(i)))
		bits := binary.LittleEndian.Uint64(block[:8])
		v := float64(int64(bits))/math.MaxInt64 - 0.5
		vec[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Calls returns the number of EmbedBatch invocations so far.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Dimensions returns the mock's vector width.
func (m *MockEmbedder) Dimensions() int {
	return m.dims
}

// Model returns the mock model name.
func (m *MockEmbedder) Model() string {
	return "mock"
}

// Health always reports healthy.
func (m *MockEmbedder) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("mock embedder operational")
}
