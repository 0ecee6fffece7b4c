package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-sec/intelgraph/internal/corpus"
	"github.com/corvus-sec/intelgraph/internal/embedder"
	"github.com/corvus-sec/intelgraph/internal/store/entity"
	"github.com/corvus-sec/intelgraph/internal/types"
	"github.com/corvus-sec/intelgraph/internal/version"
)

type searchHarness struct {
	hybrid   *Hybrid
	embedder *embedder.MockEmbedder
	entities *entity.SqliteStore
	versions *version.SqliteStore
}

func newSearchHarness(t *testing.T) *searchHarness {
	t.Helper()

	mock := embedder.NewMockEmbedder(4)

	entities, err := entity.NewSqliteStore(entity.SqliteConfig{Path: ":memory:", MaxConnections: 1})
	require.NoError(t, err)
	t.Cleanup(func() { entities.Close() })

	versions, err := version.NewSqliteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { versions.Close() })

	return &searchHarness{
		hybrid:   NewHybrid(entities, mock, versions, nil),
		embedder: mock,
		entities: entities,
		versions: versions,
	}
}

// seed installs a version with fixed embeddings so vector ranking is
// predictable: the query "phishing" is pinned to the same vector as the
// spearphishing technique.
func (h *searchHarness) seed(t *testing.T, ver string) {
	t.Helper()
	ctx := context.Background()

	h.embedder.Fixed["phishing"] = []float64{1, 0, 0, 0}

	records := []entity.Record{
		{
			ID:          "attack-pattern--0001",
			Type:        "attack-pattern",
			Name:        "Spearphishing Attachment",
			Description: "Adversaries may send spearphishing emails with a malicious attachment.",
			Metadata:    map[string]any{"x_mitre_platforms": []any{"windows", "linux"}},
			Embedding:   []float64{1, 0, 0, 0},
			Version:     ver,
		},
		{
			ID:          "attack-pattern--0002",
			Type:        "attack-pattern",
			Name:        "Phishing",
			Description: "Adversaries may send phishing messages to gain access.",
			Metadata:    map[string]any{"x_mitre_platforms": []any{"macos"}},
			Embedding:   []float64{0.8, 0.6, 0, 0},
			Version:     ver,
		},
		{
			ID:          "malware--0003",
			Type:        "malware",
			Name:        "Emotet",
			Description: "Emotet is a banking trojan often delivered through phishing campaigns.",
			Embedding:   []float64{0, 0, 1, 0},
			Version:     ver,
		},
	}
	require.NoError(t, h.entities.ReplaceVersion(ctx, ver, records))
	require.NoError(t, h.versions.SetActive(ctx, corpus.VersionMetadata{
		Version:     ver,
		IngestedAt:  time.Now().UTC(),
		EntityCount: len(records),
	}))
}

func TestSearchBlendsVectorAndLexical(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")

	resp, err := h.hybrid.Search(context.Background(), "phishing", Options{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "17.0", resp.Version)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Results, 3)

	// Perfect vector match plus a name substring hit wins.
	assert.Equal(t, "attack-pattern--0001", resp.Results[0].ID)
	assert.InDelta(t, 1.0, resp.Results[0].VectorScore, 1e-9)
	// Exact lexical name match with weaker vector proximity comes second.
	assert.Equal(t, "attack-pattern--0002", resp.Results[1].ID)
	assert.Equal(t, 1.0, resp.Results[1].LexicalScore)
	// Description-only lexical match still surfaces.
	assert.Equal(t, "malware--0003", resp.Results[2].ID)
	assert.Equal(t, 0.5, resp.Results[2].LexicalScore)

	for _, r := range resp.Results {
		want := DefaultVectorWeight*r.VectorScore + DefaultLexicalWeight*r.LexicalScore
		assert.InDelta(t, want, r.Score, 1e-9)
	}
}

func TestSearchCustomWeights(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")

	// All weight on the lexical path flips the top two results: the exact
	// name match outranks the perfect vector match.
	lexical := NewHybrid(h.entities, h.embedder, h.versions, nil, WithWeights(0, 1))
	resp, err := lexical.Search(context.Background(), "phishing", Options{Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "attack-pattern--0002", resp.Results[0].ID)
	assert.Equal(t, 1.0, resp.Results[0].Score)
	assert.Equal(t, "attack-pattern--0001", resp.Results[1].ID)
}

func TestSearchDegradesToLexicalWhenEmbedderFails(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")

	h.embedder.FailNext = true
	resp, err := h.hybrid.Search(context.Background(), "phishing", Options{Limit: 10})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.NotEmpty(t, resp.Results)

	// Lexical score carries full weight in degraded mode.
	assert.Equal(t, "attack-pattern--0002", resp.Results[0].ID)
	assert.Equal(t, 1.0, resp.Results[0].Score)
	for _, r := range resp.Results {
		assert.Zero(t, r.VectorScore)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")

	resp, err := h.hybrid.Search(context.Background(), "   ", Options{})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSearchNegativeLimit(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")

	_, err := h.hybrid.Search(context.Background(), "phishing", Options{Limit: -1})
	require.Error(t, err)
	assert.Equal(t, types.INVALID_QUERY, types.CodeOf(err))
}

func TestSearchNoActiveVersion(t *testing.T) {
	h := newSearchHarness(t)

	_, err := h.hybrid.Search(context.Background(), "phishing", Options{})
	require.Error(t, err)
	assert.Equal(t, types.VERSION_NOT_FOUND, types.CodeOf(err))
}

func TestSearchPinnedVersion(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "16.1")
	h.seed(t, "17.0")

	resp, err := h.hybrid.Search(context.Background(), "phishing", Options{Version: "16.1"})
	require.NoError(t, err)
	assert.Equal(t, "16.1", resp.Version)
	assert.NotEmpty(t, resp.Results)
}

func TestSearchLimit(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")

	resp, err := h.hybrid.Search(context.Background(), "phishing", Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, "attack-pattern--0001", resp.Results[0].ID)
}

func TestSearchWithCELFilter(t *testing.T) {
	h := newSearchHarness(t)
	h.seed(t, "17.0")
	ctx := context.Background()

	t.Run("type filter", func(t *testing.T) {
		resp, err := h.hybrid.Search(ctx, "phishing", Options{Filter: `type == "malware"`})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "malware--0003", resp.Results[0].ID)
	})

	t.Run("metadata filter", func(t *testing.T) {
		resp, err := h.hybrid.Search(ctx, "phishing", Options{Filter: `"windows" in metadata.x_mitre_platforms`})
		require.NoError(t, err)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "attack-pattern--0001", resp.Results[0].ID)
	})

	t.Run("filter excluding everything", func(t *testing.T) {
		resp, err := h.hybrid.Search(ctx, "phishing", Options{Filter: `type == "tool"`})
		require.NoError(t, err)
		assert.Empty(t, resp.Results)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := h.hybrid.Search(ctx, "phishing", Options{Filter: `type ==`})
		require.Error(t, err)
		assert.Equal(t, types.FILTER_COMPILE_FAIL, types.CodeOf(err))
	})

	t.Run("non-boolean expression", func(t *testing.T) {
		_, err := h.hybrid.Search(ctx, "phishing", Options{Filter: `name`})
		require.Error(t, err)
		assert.Equal(t, types.FILTER_COMPILE_FAIL, types.CodeOf(err))
	})
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	h := newSearchHarness(t)
	ctx := context.Background()

	// Two entities with identical scores on both paths.
	records := []entity.Record{
		{ID: "z-tool", Type: "tool", Name: "mimikatz", Embedding: []float64{1, 0, 0, 0}, Version: "17.0"},
		{ID: "a-tool", Type: "tool", Name: "mimikatz", Embedding: []float64{1, 0, 0, 0}, Version: "17.0"},
	}
	require.NoError(t, h.entities.ReplaceVersion(ctx, "17.0", records))
	require.NoError(t, h.versions.SetActive(ctx, corpus.VersionMetadata{
		Version: "17.0", IngestedAt: time.Now().UTC(), EntityCount: 2,
	}))
	h.embedder.Fixed["mimikatz"] = []float64{1, 0, 0, 0}

	for i := 0; i < 5; i++ {
		resp, err := h.hybrid.Search(ctx, "mimikatz", Options{})
		require.NoError(t, err)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "a-tool", resp.Results[0].ID)
		assert.Equal(t, "z-tool", resp.Results[1].ID)
	}
}

func TestFilterMatchesNilFilter(t *testing.T) {
	var f *Filter
	assert.True(t, f.Matches(entity.Candidate{ID: "x"}))
	assert.Empty(t, f.String())
}

func TestFilterEvaluationErrorExcludes(t *testing.T) {
	f, err := CompileFilter(`metadata.missing_key == "x"`)
	require.NoError(t, err)

	// Missing key evaluates to an error, which excludes the candidate.
	assert.False(t, f.Matches(entity.Candidate{ID: "a", Metadata: map[string]any{}}))
}
