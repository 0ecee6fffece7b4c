package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-sec/intelgraph/internal/types"
)

func TestNodeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"attack-pattern", "AttackPattern"},
		{"malware", "Malware"},
		{"course-of-action", "CourseOfAction"},
		{"x-mitre-tactic", "XMitreTactic"},
		{"intrusion_set", "IntrusionSet"},
		{"tool", "Tool"},
		{"", "Entity"},
		{"---", "Entity"},
		{"weird) MATCH (x", "WeirdMATCHX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NodeLabel(tt.in), "input %q", tt.in)
	}
}

func TestRelType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"uses", "USES"},
		{"subtechnique-of", "SUBTECHNIQUE_OF"},
		{"attributed-to", "ATTRIBUTED_TO"},
		{"mitigates", "MITIGATES"},
		{"", "RELATED_TO"},
		{"]->(x) DETACH DELETE x//", "X_DETACH_DELETE_X"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RelType(tt.in), "input %q", tt.in)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.URI = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, types.INVALID_CONFIG, types.CodeOf(err))
}

func testGraph(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()

	nodes := []Node{
		{ID: "attack-pattern--0001", Type: "attack-pattern", Name: "Spearphishing Attachment", Version: "17.0"},
		{ID: "intrusion-set--0002", Type: "intrusion-set", Name: "APT28", Version: "17.0"},
		{ID: "malware--0003", Type: "malware", Name: "Emotet", Version: "17.0"},
		{ID: "course-of-action--0004", Type: "course-of-action", Name: "User Training", Version: "17.0"},
	}
	edges := []Edge{
		{SourceID: "intrusion-set--0002", TargetID: "attack-pattern--0001", Type: "uses"},
		{SourceID: "malware--0003", TargetID: "attack-pattern--0001", Type: "uses"},
		{SourceID: "course-of-action--0004", TargetID: "attack-pattern--0001", Type: "mitigates"},
	}
	require.NoError(t, s.ReplaceVersion(context.Background(), "17.0", nodes, edges))
	return s
}

func TestNodeExists(t *testing.T) {
	s := testGraph(t)
	ctx := context.Background()

	ok, err := s.NodeExists(ctx, "17.0", "malware--0003")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.NodeExists(ctx, "17.0", "malware--9999")
	require.NoError(t, err)
	assert.False(t, ok)

	// Same ID, different version.
	ok, err = s.NodeExists(ctx, "16.1", "malware--0003")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNodeLookup(t *testing.T) {
	s := testGraph(t)
	ctx := context.Background()

	n, err := s.Node(ctx, "17.0", "malware--0003")
	require.NoError(t, err)
	assert.Equal(t, "Emotet", n.Name)
	assert.Equal(t, "malware", n.Type)

	_, err = s.Node(ctx, "17.0", "malware--9999")
	require.Error(t, err)
	assert.Equal(t, types.ENTITY_NOT_FOUND, types.CodeOf(err))

	_, err = s.Node(ctx, "16.1", "malware--0003")
	require.Error(t, err)
	assert.Equal(t, types.ENTITY_NOT_FOUND, types.CodeOf(err))
}

func TestNeighborsBothDirections(t *testing.T) {
	s := testGraph(t)

	neighbors, err := s.Neighbors(context.Background(), "17.0", "attack-pattern--0001")
	require.NoError(t, err)
	require.Len(t, neighbors, 3)

	// All three edges point at the technique, so all are incoming.
	for _, n := range neighbors {
		assert.Equal(t, DirectionIn, n.Direction)
	}
	// Deterministic order: edge type then neighbor ID.
	assert.Equal(t, "course-of-action--0004", neighbors[0].Node.ID)
	assert.Equal(t, "MITIGATES", neighbors[0].EdgeType)
	assert.Equal(t, "intrusion-set--0002", neighbors[1].Node.ID)
	assert.Equal(t, "malware--0003", neighbors[2].Node.ID)
}

func TestNeighborsOutgoing(t *testing.T) {
	s := testGraph(t)

	neighbors, err := s.Neighbors(context.Background(), "17.0", "intrusion-set--0002")
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, DirectionOut, neighbors[0].Direction)
	assert.Equal(t, "USES", neighbors[0].EdgeType)
	assert.Equal(t, "attack-pattern--0001", neighbors[0].Node.ID)
}

func TestNeighborsOfIsolatedNode(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.ReplaceVersion(ctx, "17.0", []Node{
		{ID: "tool--0001", Type: "tool", Name: "mimikatz", Version: "17.0"},
	}, nil))

	neighbors, err := s.Neighbors(ctx, "17.0", "tool--0001")
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}

func TestReplaceVersionRejectsDanglingEdge(t *testing.T) {
	s := NewMemoryStore()

	err := s.ReplaceVersion(context.Background(), "17.0",
		[]Node{{ID: "a", Type: "malware", Version: "17.0"}},
		[]Edge{{SourceID: "a", TargetID: "ghost", Type: "uses"}})
	require.Error(t, err)
	assert.Equal(t, types.GRAPH_STORE_FAILED, types.CodeOf(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestReplaceVersionRejectsVersionMismatch(t *testing.T) {
	s := NewMemoryStore()

	err := s.ReplaceVersion(context.Background(), "17.0",
		[]Node{{ID: "a", Type: "malware", Version: "16.1"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "16.1")
}

func TestReplaceVersionOverwrites(t *testing.T) {
	s := testGraph(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceVersion(ctx, "17.0", []Node{
		{ID: "tool--0005", Type: "tool", Name: "PsExec", Version: "17.0"},
	}, nil))

	ok, err := s.NodeExists(ctx, "17.0", "attack-pattern--0001")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.NodeExists(ctx, "17.0", "tool--0005")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreFailNext(t *testing.T) {
	s := testGraph(t)
	injected := types.NewRetryableError(types.GRAPH_STORE_FAILED, "injected")
	s.FailNext(injected)

	_, err := s.Neighbors(context.Background(), "17.0", "attack-pattern--0001")
	require.Error(t, err)
	assert.Equal(t, types.GRAPH_STORE_FAILED, types.CodeOf(err))

	// One-shot.
	_, err = s.Neighbors(context.Background(), "17.0", "attack-pattern--0001")
	assert.NoError(t, err)
}

func TestChunkRows(t *testing.T) {
	rows := make([]map[string]any, 7)
	chunks := chunkRows(rows, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)

	assert.Empty(t, chunkRows(nil, 3))
}
