package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// MockProvider is a deterministic Provider for tests. By default it echoes
// the last user message; Reply pins a fixed response. Streaming splits the
// response into word chunks.
type MockProvider struct {
	mu sync.Mutex

	// Reply, when non-empty, is returned for every completion.
	Reply string

	// FailNext makes the next call fail once.
	FailNext bool

	// LastRequest records the most recent request for assertions.
	LastRequest *Request

	calls int
}

// NewMockProvider creates a mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// Calls returns how many completions have run.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) respond(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reqCopy := req
	m.LastRequest = &reqCopy

	if m.FailNext {
		m.FailNext = false
		return "", types.NewRetryableError(types.COMPLETION_FAILED, "mock completion failure")
	}
	m.calls++

	if m.Reply != "" {
		return m.Reply, nil
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return "echo: " + req.Messages[i].Content, nil
		}
	}
	return "echo:", nil
}

// Complete returns the configured or echoed response.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	content, err := m.respond(req)
	if err != nil {
		return nil, err
	}
	return &Response{Content: content, Model: "mock"}, nil
}

// Stream emits the response one word at a time.
func (m *MockProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	content, err := m.respond(req)

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		if err != nil {
			chunks <- StreamChunk{Err: err}
			return
		}
		words := strings.SplitAfter(content, " ")
		for _, w := range words {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Err: ctx.Err()}
				return
			case chunks <- StreamChunk{Content: w}:
			}
		}
	}()
	return chunks, nil
}

// Health always reports healthy.
func (m *MockProvider) Health(ctx context.Context) types.HealthStatus {
	return types.Healthy("mock provider")
}
