// Package graphquery resolves bounded graph neighborhoods: breadth-first
// expansion from one entity, hop by hop, over the active corpus version.
package graphquery

import (
	"context"
	"log/slog"

	"github.com/corvus-sec/intelgraph/internal/store/graph"
	"github.com/corvus-sec/intelgraph/internal/types"
	"github.com/corvus-sec/intelgraph/internal/version"
)

// Hop bounds. Requests above MaxHops clamp rather than fail; the fan-out
// of threat graphs makes deeper expansions useless and expensive.
const (
	DefaultHops = 1
	MaxHops     = 3
)

// Options tunes one neighborhood request.
type Options struct {
	// Hops is the expansion depth. Zero means DefaultHops; values above
	// MaxHops clamp to MaxHops.
	Hops int

	// Version pins the query to a specific corpus version instead of the
	// active one.
	Version string
}

// Reached is one node found during expansion: the node, the edge that
// first reached it, and its hop distance from the origin. Via is the ID
// of the already-visited node on the near side of that edge, so callers
// can reconstruct the edge endpoints: outgoing edges run Via to Node,
// incoming edges run Node to Via.
type Reached struct {
	Node      graph.Node `json:"node"`
	Via       string     `json:"via"`
	EdgeType  string     `json:"edge_type"`
	Direction string     `json:"direction"`
	Distance  int        `json:"distance"`
}

// Edge is one traversed relationship with explicit endpoints.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"relation_type"`
}

// Response is one resolved neighborhood. Neighbors are ordered by
// distance, then by the deterministic order of the underlying store.
// Edges holds every relationship traversed during the expansion, not
// just the first-reach ones, so cycles and cross-links inside the
// radius survive for rendering.
type Response struct {
	Version   string     `json:"version"`
	Origin    graph.Node `json:"origin"`
	Hops      int        `json:"hops"`
	Neighbors []Reached  `json:"neighbors"`
	Edges     []Edge     `json:"edges"`
}

// Resolver expands neighborhoods against the graph store.
type Resolver struct {
	graph    graph.Store
	versions version.Store
	logger   *slog.Logger
	maxHops  int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxHops sets the hard hop ceiling. Non-positive values are ignored.
func WithMaxHops(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxHops = n
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(g graph.Store, versions version.Store, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{graph: g, versions: versions, logger: logger, maxHops: MaxHops}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Neighborhood runs a breadth-first expansion from entityID. Each node is
// reported once, at its shortest distance from the origin; the origin
// itself is excluded from Neighbors. Edges into already-visited nodes are
// still recorded so cycles within the radius are not lost.
func (r *Resolver) Neighborhood(ctx context.Context, entityID string, opts Options) (*Response, error) {
	if entityID == "" {
		return nil, types.NewError(types.INVALID_QUERY, "entity ID cannot be empty")
	}

	hops := opts.Hops
	if hops <= 0 {
		hops = DefaultHops
	}
	if hops > r.maxHops {
		hops = r.maxHops
	}

	ver := opts.Version
	if ver == "" {
		active, err := r.versions.GetActive(ctx)
		if err != nil {
			return nil, err
		}
		ver = active.Version
	}

	origin, err := r.graph.Node(ctx, ver, entityID)
	if err != nil {
		return nil, err
	}

	visited := map[string]struct{}{entityID: {}}
	frontier := []string{entityID}
	var reached []Reached
	var edges []Edge
	seenEdges := make(map[Edge]struct{})

	for depth := 1; depth <= hops && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := r.graph.Neighbors(ctx, ver, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				e := Edge{Source: id, Target: n.Node.ID, Type: n.EdgeType}
				if n.Direction == graph.DirectionIn {
					e.Source, e.Target = e.Target, e.Source
				}
				if _, dup := seenEdges[e]; !dup {
					seenEdges[e] = struct{}{}
					edges = append(edges, e)
				}

				if _, seen := visited[n.Node.ID]; seen {
					continue
				}
				visited[n.Node.ID] = struct{}{}
				reached = append(reached, Reached{
					Node:      n.Node,
					Via:       id,
					EdgeType:  n.EdgeType,
					Direction: n.Direction,
					Distance:  depth,
				})
				next = append(next, n.Node.ID)
			}
		}
		frontier = next
	}

	r.logger.Debug("neighborhood resolved",
		slog.String("entity_id", entityID),
		slog.String("version", ver),
		slog.Int("hops", hops),
		slog.Int("neighbors", len(reached)),
		slog.Int("edges", len(edges)),
	)

	return &Response{
		Version:   ver,
		Origin:    *origin,
		Hops:      hops,
		Neighbors: reached,
		Edges:     edges,
	}, nil
}
