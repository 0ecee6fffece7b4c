package entity

import (
	"github.com/corvus-sec/intelgraph/internal/types"
)

// Record is one stored entity row: the document fields plus the derived
// embedding. The embedding is regenerated on every ingest and never treated
// as authoritative data.
type Record struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Embedding   []float64      `json:"embedding,omitempty"`
	Version     string         `json:"version"`
}

// Validate ensures the record can be stored.
func (r *Record) Validate() error {
	if r.ID == "" {
		return types.NewError(types.ENTITY_STORE_FAILED, "entity record ID cannot be empty")
	}
	if r.Type == "" {
		return types.NewError(types.ENTITY_STORE_FAILED, "entity record type cannot be empty")
	}
	if r.Version == "" {
		return types.NewError(types.ENTITY_STORE_FAILED, "entity record version cannot be empty")
	}
	return nil
}

// Candidate is a ranked hit from one of the search paths. Score semantics
// depend on the path: cosine similarity clamped to [0,1] for vector search,
// match-kind score for lexical search.
type Candidate struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Score       float64        `json:"score"`
}

// Lexical match-kind scores, strongest first. The values are already
// normalized to [0,1] so the hybrid ranker can blend them directly.
const (
	scoreNameExact    = 1.0
	scoreNamePrefix   = 0.85
	scoreNameContains = 0.7
	scoreDescContains = 0.5
)
