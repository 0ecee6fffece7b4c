package graph

import (
	"context"
	"sync"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// MemoryStore is an in-memory Store used in tests and single-binary
// deployments without a Neo4j instance.
type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[string]map[string]Node // version -> id -> node
	edges    map[string][]Edge          // version -> edges
	failNext error
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]Node),
		edges: make(map[string][]Edge),
	}
}

// FailNext makes the next mutating or reading call return err once.
func (s *MemoryStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemoryStore) takeFailure() error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	return nil
}

// ReplaceVersion replaces one version's nodes and edges.
func (s *MemoryStore) ReplaceVersion(ctx context.Context, version string, nodes []Node, edges []Edge) error {
	if err := validateReplace(version, nodes, edges); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	s.nodes[version] = byID
	s.edges[version] = append([]Edge(nil), edges...)
	return nil
}

// NodeExists reports whether a node exists in a version.
func (s *MemoryStore) NodeExists(ctx context.Context, version, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.takeFailure(); err != nil {
		return false, err
	}

	_, ok := s.nodes[version][id]
	return ok, nil
}

// Node returns one node of a version by identifier.
func (s *MemoryStore) Node(ctx context.Context, version, id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	n, ok := s.nodes[version][id]
	if !ok {
		return nil, types.NewError(types.ENTITY_NOT_FOUND,
			"node "+id+" not found in version "+version)
	}
	return &n, nil
}

// Neighbors returns all one-hop neighbors of a node within a version.
func (s *MemoryStore) Neighbors(ctx context.Context, version, id string) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	byID := s.nodes[version]
	neighbors := make([]Neighbor, 0)
	for _, e := range s.edges[version] {
		relType := RelType(e.Type)
		if e.SourceID == id {
			if target, ok := byID[e.TargetID]; ok {
				neighbors = append(neighbors, Neighbor{
					Node:      target,
					EdgeType:  relType,
					Direction: DirectionOut,
				})
			}
		}
		if e.TargetID == id {
			if source, ok := byID[e.SourceID]; ok {
				neighbors = append(neighbors, Neighbor{
					Node:      source,
					EdgeType:  relType,
					Direction: DirectionIn,
				})
			}
		}
	}
	sortNeighbors(neighbors)
	return neighbors, nil
}

// Health always reports healthy with a node count.
func (s *MemoryStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, byID := range s.nodes {
		total += len(byID)
	}
	if total == 0 {
		return types.Healthy("in-memory graph store empty")
	}
	return types.Healthy("in-memory graph store operational")
}

// Close is a no-op.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
