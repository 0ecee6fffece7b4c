package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/corvus-sec/intelgraph/internal/embedder"
	"github.com/corvus-sec/intelgraph/internal/store/entity"
	"github.com/corvus-sec/intelgraph/internal/types"
	"github.com/corvus-sec/intelgraph/internal/version"
)

// Blend weights and overfetch factor for the hybrid ranker. Each path
// fetches overfetch*limit candidates so an entity strong on one path
// but absent from the other's top slice still surfaces.
const (
	DefaultVectorWeight  = 0.7
	DefaultLexicalWeight = 0.3

	DefaultOverfetch = 3

	// DefaultLimit applies when the request does not set one.
	DefaultLimit = 10
	// MaxLimit caps the result count of a single request.
	MaxLimit = 100
)

// Options tunes one search request.
type Options struct {
	// Limit is the maximum number of results. Zero means DefaultLimit;
	// negative values are rejected.
	Limit int

	// Filter is an optional CEL expression over entity fields and
	// metadata.
	Filter string

	// Version pins the search to a specific corpus version instead of the
	// active one.
	Version string
}

// Result is one ranked hit with its per-path score components.
type Result struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Score        float64        `json:"score"`
	VectorScore  float64        `json:"vector_score"`
	LexicalScore float64        `json:"lexical_score"`
}

// Response is one completed search.
type Response struct {
	Version string `json:"version"`

	// Degraded is true when the embedder was unavailable and only the
	// lexical path contributed.
	Degraded bool `json:"degraded,omitempty"`

	Results []Result `json:"results"`
}

// Hybrid blends vector and lexical retrieval over one corpus version.
type Hybrid struct {
	entities entity.Store
	embedder embedder.Embedder
	versions version.Store
	logger   *slog.Logger

	vectorWeight  float64
	lexicalWeight float64
	overfetch     int
}

// Option configures a Hybrid searcher.
type Option func(*Hybrid)

// WithWeights sets the blend weights for the two retrieval paths.
// Non-positive combinations are ignored.
func WithWeights(vector, lexical float64) Option {
	return func(h *Hybrid) {
		if vector >= 0 && lexical >= 0 && vector+lexical > 0 {
			h.vectorWeight = vector
			h.lexicalWeight = lexical
		}
	}
}

// WithOverfetch sets the per-path candidate fetch multiplier.
func WithOverfetch(n int) Option {
	return func(h *Hybrid) {
		if n > 0 {
			h.overfetch = n
		}
	}
}

// NewHybrid creates a hybrid searcher.
func NewHybrid(entities entity.Store, emb embedder.Embedder, versions version.Store, logger *slog.Logger, opts ...Option) *Hybrid {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hybrid{
		entities:      entities,
		embedder:      emb,
		versions:      versions,
		logger:        logger,
		vectorWeight:  DefaultVectorWeight,
		lexicalWeight: DefaultLexicalWeight,
		overfetch:     DefaultOverfetch,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Search runs one hybrid query against the active (or pinned) version. An
// empty query returns an empty ranking rather than an error.
func (h *Hybrid) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	if opts.Limit < 0 {
		return nil, types.NewError(types.INVALID_QUERY, "limit cannot be negative")
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return &Response{Results: []Result{}}, nil
	}

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	filter, err := CompileFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	ver := opts.Version
	if ver == "" {
		active, err := h.versions.GetActive(ctx)
		if err != nil {
			return nil, err
		}
		ver = active.Version
	}

	fetch := limit * h.overfetch

	var vector []entity.Candidate
	degraded := false
	queryVec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		h.logger.Warn("query embedding failed, degrading to lexical search",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		degraded = true
	} else if len(queryVec) > 0 {
		vector, err = h.entities.SearchVector(ctx, ver, queryVec, fetch)
		if err != nil {
			return nil, err
		}
	}

	lexical, err := h.entities.SearchText(ctx, ver, query, fetch)
	if err != nil {
		return nil, err
	}

	results := h.blend(vector, lexical, degraded)
	if filter != nil {
		filtered := results[:0]
		for _, r := range results {
			if filter.Matches(entity.Candidate{
				ID:          r.ID,
				Type:        r.Type,
				Name:        r.Name,
				Description: r.Description,
				Metadata:    r.Metadata,
			}) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return &Response{Version: ver, Degraded: degraded, Results: results}, nil
}

// blend merges the two candidate lists into one ranking. An entity seen by
// only one path contributes zero on the other component. When the vector
// path is degraded the lexical score carries full weight so scores stay
// comparable within the response.
func (h *Hybrid) blend(vector, lexical []entity.Candidate, degraded bool) []Result {
	merged := make(map[string]*Result, len(vector)+len(lexical))

	for _, c := range vector {
		merged[c.ID] = &Result{
			ID:          c.ID,
			Type:        c.Type,
			Name:        c.Name,
			Description: c.Description,
			Metadata:    c.Metadata,
			VectorScore: c.Score,
		}
	}
	for _, c := range lexical {
		if r, ok := merged[c.ID]; ok {
			r.LexicalScore = c.Score
			continue
		}
		merged[c.ID] = &Result{
			ID:           c.ID,
			Type:         c.Type,
			Name:         c.Name,
			Description:  c.Description,
			Metadata:     c.Metadata,
			LexicalScore: c.Score,
		}
	}

	results := make([]Result, 0, len(merged))
	for _, r := range merged {
		if degraded {
			r.Score = r.LexicalScore
		} else {
			r.Score = h.vectorWeight*r.VectorScore + h.lexicalWeight*r.LexicalScore
		}
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].LexicalScore != results[j].LexicalScore {
			return results[i].LexicalScore > results[j].LexicalScore
		}
		return results[i].ID < results[j].ID
	})
	return results
}
