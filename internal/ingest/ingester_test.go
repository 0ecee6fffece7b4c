package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-sec/intelgraph/internal/embedder"
	"github.com/corvus-sec/intelgraph/internal/store/entity"
	"github.com/corvus-sec/intelgraph/internal/store/graph"
	"github.com/corvus-sec/intelgraph/internal/types"
	"github.com/corvus-sec/intelgraph/internal/version"
)

const sampleBundle = `{
	"version": "17.0",
	"spec_version": "2.1",
	"id": "bundle--test",
	"objects": [
		{
			"id": "attack-pattern--0001",
			"type": "attack-pattern",
			"name": "Spearphishing Attachment",
			"description": "Adversaries may send spearphishing emails with a malicious attachment."
		},
		{
			"id": "intrusion-set--0002",
			"type": "intrusion-set",
			"name": "APT28",
			"description": "APT28 is a threat group attributed to a military intelligence agency."
		},
		{
			"id": "relationship--0003",
			"type": "relationship",
			"source_ref": "intrusion-set--0002",
			"target_ref": "attack-pattern--0001",
			"relationship_type": "uses"
		}
	]
}`

type testHarness struct {
	ingester *Ingester
	embedder *embedder.MockEmbedder
	entities *entity.SqliteStore
	graph    *graph.MemoryStore
	versions *version.SqliteStore
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	mock := embedder.NewMockEmbedder(8)

	entities, err := entity.NewSqliteStore(entity.SqliteConfig{Path: ":memory:", MaxConnections: 1})
	require.NoError(t, err)
	t.Cleanup(func() { entities.Close() })

	versions, err := version.NewSqliteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { versions.Close() })

	g := graph.NewMemoryStore()

	return &testHarness{
		ingester: New(mock, entities, g, versions, WithEmbedWorkers(2)),
		embedder: mock,
		entities: entities,
		graph:    g,
		versions: versions,
	}
}

func TestIngestActivatesVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.NoError(t, err)
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, "17.0", result.Version)
	assert.Equal(t, 2, result.EntityCount)
	assert.Equal(t, 1, result.RelationshipCount)

	active, err := h.versions.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "17.0", active.Version)
	assert.Equal(t, 2, active.EntityCount)

	// Entity store holds the documents with embeddings.
	rec, err := h.entities.Get(ctx, "17.0", "attack-pattern--0001")
	require.NoError(t, err)
	assert.Equal(t, "Spearphishing Attachment", rec.Name)
	assert.Len(t, rec.Embedding, 8)

	// Graph store holds the topology.
	neighbors, err := h.graph.Neighbors(ctx, "17.0", "attack-pattern--0001")
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "intrusion-set--0002", neighbors[0].Node.ID)
	assert.Equal(t, "USES", neighbors[0].EdgeType)

	// Raw bundle is archived for download.
	data, err := h.versions.Bundle(ctx, "17.0")
	require.NoError(t, err)
	assert.JSONEq(t, sampleBundle, string(data))
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	h := newHarness(t)

	_, err := h.ingester.Ingest(context.Background(), []byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, types.VALIDATION_BAD_FORMAT, types.CodeOf(err))
}

func TestIngestRejectsInvalidBundleBeforeWriting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := `{
		"version": "17.0",
		"objects": [
			{"id": "a", "type": "malware", "name": "x"},
			{"type": "relationship", "source_ref": "a", "target_ref": "ghost", "relationship_type": "uses"}
		]
	}`
	_, err := h.ingester.Ingest(ctx, []byte(bad))
	require.Error(t, err)
	assert.Equal(t, types.VALIDATION_FAILED, types.CodeOf(err))

	// Nothing was written, nothing activated.
	_, err = h.versions.GetActive(ctx)
	assert.Equal(t, types.VERSION_NOT_FOUND, types.CodeOf(err))
	n, err := h.entities.Count(ctx, "17.0")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, h.embedder.Calls())
}

func TestEmbedderFailureLeavesPointerUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// First ingest succeeds and activates 16.1.
	old := `{"version": "16.1", "objects": [{"id": "a", "type": "malware", "name": "old"}]}`
	_, err := h.ingester.Ingest(ctx, []byte(old))
	require.NoError(t, err)

	h.embedder.FailNext = true
	_, err = h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.Error(t, err)
	assert.Equal(t, types.INGEST_INTERRUPTED, types.CodeOf(err))

	active, err := h.versions.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "16.1", active.Version)
}

func TestGraphFailureLeavesPointerUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old := `{"version": "16.1", "objects": [{"id": "a", "type": "malware", "name": "old"}]}`
	_, err := h.ingester.Ingest(ctx, []byte(old))
	require.NoError(t, err)

	h.graph.FailNext(types.NewRetryableError(types.GRAPH_STORE_FAILED, "injected"))
	_, err = h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.Error(t, err)
	assert.Equal(t, types.INGEST_INTERRUPTED, types.CodeOf(err))

	active, err := h.versions.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "16.1", active.Version)

	// Retrying the same bundle overwrites the partial write and succeeds.
	_, err = h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.NoError(t, err)
	active, err = h.versions.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "17.0", active.Version)
}

func TestCancelledContextNeverActivates(t *testing.T) {
	h := newHarness(t)

	// Previously active version.
	old := `{"version": "16.1", "objects": [{"id": "a", "type": "malware", "name": "old"}]}`
	_, err := h.ingester.Ingest(context.Background(), []byte(old))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.Error(t, err)

	active, err := h.versions.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "16.1", active.Version)
}

func TestReingestSameVersionIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.NoError(t, err)
	_, err = h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.NoError(t, err)

	n, err := h.entities.Count(ctx, "17.0")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	versions, err := h.versions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestIngestBatchesEmbeddingCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Both embeddable entities fit one batch, so the provider sees a
	// single request rather than one per entity.
	_, err := h.ingester.Ingest(ctx, []byte(sampleBundle))
	require.NoError(t, err)
	assert.Equal(t, 1, h.embedder.Calls())

	rec, err := h.entities.Get(ctx, "17.0", "intrusion-set--0002")
	require.NoError(t, err)
	assert.Len(t, rec.Embedding, 8)
}

func TestEntityWithoutTextGetsNoEmbedding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bundle := `{"version": "17.0", "objects": [{"id": "x-mitre-matrix--0001", "type": "x-mitre-matrix"}]}`
	_, err := h.ingester.Ingest(ctx, []byte(bundle))
	require.NoError(t, err)

	rec, err := h.entities.Get(ctx, "17.0", "x-mitre-matrix--0001")
	require.NoError(t, err)
	assert.Empty(t, rec.Embedding)
	assert.Zero(t, h.embedder.Calls())
}

func TestConcurrentIngestsOfDifferentVersions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bundle := fmt.Sprintf(`{"version": "v%d", "objects": [{"id": "a", "type": "malware", "name": "m%d"}]}`, i, i)
			_, errs[i] = h.ingester.Ingest(ctx, []byte(bundle))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "ingest %d", i)
	}
	versions, err := h.versions.List(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, 4)
}

func TestMetadataPreservedThroughIngest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bundle := `{
		"version": "17.0",
		"objects": [
			{"id": "a", "type": "attack-pattern", "name": "T1", "x_mitre_platforms": ["windows", "linux"]}
		]
	}`
	_, err := h.ingester.Ingest(ctx, []byte(bundle))
	require.NoError(t, err)

	rec, err := h.entities.Get(ctx, "17.0", "a")
	require.NoError(t, err)
	require.Contains(t, rec.Metadata, "x_mitre_platforms")
	assert.Equal(t, []any{"windows", "linux"}, rec.Metadata["x_mitre_platforms"])
}
