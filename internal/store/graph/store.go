package graph

import (
	"context"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Store is the traversal-store contract used by ingest and the neighborhood
// resolver.
type Store interface {
	// ReplaceVersion replaces one version's nodes and edges. Edges whose
	// endpoints are not in nodes are rejected.
	ReplaceVersion(ctx context.Context, version string, nodes []Node, edges []Edge) error

	// NodeExists reports whether a node exists in a version.
	NodeExists(ctx context.Context, version, id string) (bool, error)

	// Node returns one node of a version by identifier, or ENTITY_NOT_FOUND.
	Node(ctx context.Context, version, id string) (*Node, error)

	// Neighbors returns every node connected to id by one edge, in either
	// direction, within a version. Order is deterministic: direction out
	// before in, then edge type, then neighbor ID.
	Neighbors(ctx context.Context, version, id string) ([]Neighbor, error)

	// Health reports store health.
	Health(ctx context.Context) types.HealthStatus

	// Close releases underlying connections.
	Close(ctx context.Context) error
}

func validateReplace(version string, nodes []Node, edges []Edge) error {
	if version == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "version cannot be empty")
	}
	ids := make(map[string]struct{}, len(nodes))
	for i := range nodes {
		if err := nodes[i].Validate(); err != nil {
			return err
		}
		if nodes[i].Version != version {
			return types.NewError(types.GRAPH_STORE_FAILED,
				"node "+nodes[i].ID+" carries version "+nodes[i].Version+", expected "+version)
		}
		ids[nodes[i].ID] = struct{}{}
	}
	for i := range edges {
		if err := edges[i].Validate(); err != nil {
			return err
		}
		if _, ok := ids[edges[i].SourceID]; !ok {
			return types.NewError(types.GRAPH_STORE_FAILED,
				"edge source "+edges[i].SourceID+" is not a node of this version")
		}
		if _, ok := ids[edges[i].TargetID]; !ok {
			return types.NewError(types.GRAPH_STORE_FAILED,
				"edge target "+edges[i].TargetID+" is not a node of this version")
		}
	}
	return nil
}
