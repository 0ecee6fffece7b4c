// Package rag assembles retrieval-grounded context for chat: it runs a
// hybrid search, renders the hits as citation-preserving snippets within a
// token budget, and drives the LLM provider with the grounded prompt.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corvus-sec/intelgraph/internal/llm"
	"github.com/corvus-sec/intelgraph/internal/search"
	"github.com/corvus-sec/intelgraph/internal/types"
)

// Defaults for context assembly. Token counts are estimated at four
// characters per token; the budget is deliberately conservative so the
// prompt plus history fits typical context windows.
const (
	DefaultContextTokens = 4000
	DefaultTopK          = 8

	snippetSeparator = "\n\n---\n\n"
	charsPerToken    = 4
)

const systemPromptGrounded = `You are a threat intelligence assistant. Answer using the reference
entries below. Cite entries by their ID when you use them. If the entries
do not contain the answer, say so instead of guessing.

Reference entries:

%s`

const systemPromptUngrounded = `You are a threat intelligence assistant. No knowledge base is
available for this conversation; answer from general knowledge and say
that the answer is not grounded in an ingested corpus.`

// Snippet is one rendered context entry. Text keeps the entity ID so
// answers can cite it.
type Snippet struct {
	EntityID   string  `json:"entity_id"`
	EntityType string  `json:"entity_type"`
	Name       string  `json:"name,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// Context is the assembled grounding for one query.
type Context struct {
	Version string `json:"version,omitempty"`

	// Snippets are the entries that made it into the budget, in rank
	// order.
	Snippets []Snippet `json:"snippets"`

	// Text is the joined snippet block handed to the model.
	Text string `json:"text"`

	// Truncated is true when at least one ranked hit was dropped to stay
	// within the token budget. Snippets are dropped whole, never split.
	Truncated bool `json:"truncated,omitempty"`

	// Degraded is true when retrieval itself was degraded (lexical-only
	// search) or unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Grounded reports whether any snippet backs the conversation.
func (c *Context) Grounded() bool {
	return c != nil && len(c.Snippets) > 0
}

// ChatOptions tunes one chat turn.
type ChatOptions struct {
	// History carries prior turns in order, oldest first.
	History []llm.Message

	// SystemPrompt replaces the default instruction when set. Grounding
	// snippets are still appended to it when retrieval produced any.
	SystemPrompt string
}

// ChatResult couples the assembled context with the streamed answer.
type ChatResult struct {
	Context *Context
	Chunks  <-chan llm.StreamChunk
}

// Assembler builds grounded prompts and runs chat completions.
type Assembler struct {
	searcher      search.Searcher
	provider      llm.Provider
	logger        *slog.Logger
	contextTokens int
	topK          int
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithContextTokens sets the context token budget.
func WithContextTokens(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.contextTokens = n
		}
	}
}

// WithTopK sets how many hits retrieval fetches before budgeting.
func WithTopK(k int) Option {
	return func(a *Assembler) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Assembler.
func New(searcher search.Searcher, provider llm.Provider, opts ...Option) *Assembler {
	a := &Assembler{
		searcher:      searcher,
		provider:      provider,
		logger:        slog.Default(),
		contextTokens: DefaultContextTokens,
		topK:          DefaultTopK,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildContext retrieves and renders grounding for one query. Retrieval
// failure does not fail the call: it returns an empty degraded context so
// chat can continue ungrounded.
func (a *Assembler) BuildContext(ctx context.Context, query string) (*Context, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.NewError(types.INVALID_QUERY, "query cannot be empty")
	}

	resp, err := a.searcher.Search(ctx, query, search.Options{Limit: a.topK})
	if err != nil {
		a.logger.Warn("retrieval unavailable, continuing without grounding",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return &Context{Degraded: true}, nil
	}

	c := &Context{Version: resp.Version, Degraded: resp.Degraded}
	budget := a.contextTokens
	for _, hit := range resp.Results {
		text := renderSnippet(hit)
		cost := estimateTokens(text)
		if len(c.Snippets) > 0 {
			cost += estimateTokens(snippetSeparator)
		}
		if cost > budget {
			c.Truncated = true
			continue
		}
		budget -= cost
		c.Snippets = append(c.Snippets, Snippet{
			EntityID:   hit.ID,
			EntityType: hit.Type,
			Name:       hit.Name,
			Score:      hit.Score,
			Text:       text,
		})
	}

	texts := make([]string, len(c.Snippets))
	for i, s := range c.Snippets {
		texts[i] = s.Text
	}
	c.Text = strings.Join(texts, snippetSeparator)
	return c, nil
}

// Chat answers one query with streamed output, grounded on the active
// corpus when retrieval succeeds.
func (a *Assembler) Chat(ctx context.Context, query string, opts ChatOptions) (*ChatResult, error) {
	grounding, err := a.BuildContext(ctx, query)
	if err != nil {
		return nil, err
	}

	var system string
	switch {
	case opts.SystemPrompt != "" && grounding.Grounded():
		system = opts.SystemPrompt + "\n\nReference entries:\n\n" + grounding.Text
	case opts.SystemPrompt != "":
		system = opts.SystemPrompt
	case grounding.Grounded():
		system = fmt.Sprintf(systemPromptGrounded, grounding.Text)
	default:
		system = systemPromptUngrounded
	}

	messages := make([]llm.Message, 0, len(opts.History)+2)
	messages = append(messages, llm.NewSystemMessage(system))
	messages = append(messages, opts.History...)
	messages = append(messages, llm.NewUserMessage(query))

	chunks, err := a.provider.Stream(ctx, llm.Request{Messages: messages})
	if err != nil {
		return nil, err
	}

	a.logger.Info("chat started",
		slog.Bool("grounded", grounding.Grounded()),
		slog.Int("snippets", len(grounding.Snippets)),
		slog.Bool("truncated", grounding.Truncated),
	)
	return &ChatResult{Context: grounding, Chunks: chunks}, nil
}

// renderSnippet formats one hit as a citable context entry.
func renderSnippet(r search.Result) string {
	var b strings.Builder
	if r.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "Type: %s\nID: %s", r.Type, r.ID)
	if r.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", r.Description)
	}
	return b.String()
}

// estimateTokens approximates the token count of a string.
func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}
