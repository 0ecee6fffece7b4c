package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Neo4jStore implements Store against a Neo4j database.
type Neo4jStore struct {
	config Config
	driver neo4j.DriverWithContext
}

// NewNeo4jStore creates a Neo4j store with the given configuration. The
// store must be connected via Connect() before use.
func NewNeo4jStore(config Config) (*Neo4jStore, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Neo4jStore{config: config}, nil
}

// Connect establishes the driver connection with exponential backoff.
func (s *Neo4jStore) Connect(ctx context.Context) error {
	auth := neo4j.BasicAuth(s.config.Username, s.config.Password, "")

	driverConfig := func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = s.config.MaxConnectionPoolSize
		config.ConnectionAcquisitionTimeout = s.config.ConnectionTimeout
	}

	var lastErr error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(s.config.URI, auth, driverConfig)
		if err == nil {
			err = driver.VerifyConnectivity(ctx)
			if err == nil {
				s.driver = driver
				return nil
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt cancelled", ctx.Err())
		}

		delay := baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > s.config.ConnectionTimeout {
			delay = s.config.ConnectionTimeout
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return types.WrapError(types.GRAPH_CONNECTION_FAILED,
				"connection attempt cancelled", ctx.Err())
		}
	}

	return types.WrapRetryableError(types.GRAPH_CONNECTION_FAILED,
		fmt.Sprintf("failed to connect after %d attempts", maxRetries), lastErr)
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return types.WrapError(types.GRAPH_STORE_FAILED, "failed to close driver", err)
	}
	s.driver = nil
	return nil
}

// Health verifies connectivity with a bounded timeout.
func (s *Neo4jStore) Health(ctx context.Context) types.HealthStatus {
	if s.driver == nil {
		return types.Unhealthy("driver not initialized")
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.driver.VerifyConnectivity(healthCtx); err != nil {
		return types.Unhealthy(fmt.Sprintf("connectivity check failed: %v", err))
	}
	return types.Healthy("connected to Neo4j")
}

// ReplaceVersion deletes the version's nodes with DETACH DELETE and
// recreates nodes and edges in UNWIND batches grouped by label and
// relationship type. Labels cannot be parameterized so the grouping keys
// pass through NodeLabel/RelType sanitization before interpolation.
func (s *Neo4jStore) ReplaceVersion(ctx context.Context, version string, nodes []Node, edges []Edge) error {
	if s.driver == nil {
		return types.NewRetryableError(types.GRAPH_CONNECTION_FAILED, "driver not connected")
	}
	if err := validateReplace(version, nodes, edges); err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (n {version: $version}) DETACH DELETE n",
			map[string]any{"version": version}); err != nil {
			return nil, fmt.Errorf("failed to clear version: %w", err)
		}

		for label, batch := range groupNodesByLabel(nodes) {
			cypher := fmt.Sprintf(`
				UNWIND $rows AS row
				CREATE (n:%s {id: row.id, type: row.type, name: row.name, version: row.version})
			`, label)
			for _, rows := range chunkRows(batch, s.config.BatchSize) {
				if _, err := tx.Run(ctx, cypher, map[string]any{"rows": rows}); err != nil {
					return nil, fmt.Errorf("failed to create %s nodes: %w", label, err)
				}
			}
		}

		for relType, batch := range groupEdgesByType(edges) {
			cypher := fmt.Sprintf(`
				UNWIND $rows AS row
				MATCH (a {id: row.source, version: $version})
				MATCH (b {id: row.target, version: $version})
				CREATE (a)-[r:%s {description: row.description}]->(b)
			`, relType)
			for _, rows := range chunkRows(batch, s.config.BatchSize) {
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"rows":    rows,
					"version": version,
				}); err != nil {
					return nil, fmt.Errorf("failed to create %s edges: %w", relType, err)
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return types.WrapRetryableError(types.GRAPH_STORE_FAILED,
			fmt.Sprintf("failed to replace version %s", version), err)
	}
	return nil
}

// NodeExists reports whether a node exists in a version.
func (s *Neo4jStore) NodeExists(ctx context.Context, version, id string) (bool, error) {
	if s.driver == nil {
		return false, types.NewRetryableError(types.GRAPH_CONNECTION_FAILED, "driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (n {id: $id, version: $version}) RETURN count(n) > 0 AS found",
			map[string]any{"id": id, "version": version})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		found, _ := record.Get("found")
		return found.(bool), nil
	})
	if err != nil {
		return false, types.WrapError(types.GRAPH_STORE_FAILED, "existence check failed", err)
	}
	return result.(bool), nil
}

// Node returns one node of a version by identifier.
func (s *Neo4jStore) Node(ctx context.Context, version, id string) (*Node, error) {
	if s.driver == nil {
		return nil, types.NewRetryableError(types.GRAPH_CONNECTION_FAILED, "driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (n {id: $id, version: $version}) RETURN n.id AS id, n.type AS type, n.name AS name LIMIT 1",
			map[string]any{"id": id, "version": version})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}

		n := Node{Version: version}
		if v, ok := records[0].Get("id"); ok {
			n.ID, _ = v.(string)
		}
		if v, ok := records[0].Get("type"); ok {
			n.Type, _ = v.(string)
		}
		if v, ok := records[0].Get("name"); ok {
			n.Name, _ = v.(string)
		}
		return &n, nil
	})
	if err != nil {
		return nil, types.WrapError(types.GRAPH_STORE_FAILED, "node lookup failed", err)
	}
	if result == nil {
		return nil, types.NewError(types.ENTITY_NOT_FOUND,
			fmt.Sprintf("node %s not found in version %s", id, version))
	}
	return result.(*Node), nil
}

// Neighbors returns all one-hop neighbors of a node within a version,
// outgoing and incoming, in deterministic order.
func (s *Neo4jStore) Neighbors(ctx context.Context, version, id string) ([]Neighbor, error) {
	if s.driver == nil {
		return nil, types.NewRetryableError(types.GRAPH_CONNECTION_FAILED, "driver not connected")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.config.Database})
	defer session.Close(ctx)

	cypher := `
		MATCH (n {id: $id, version: $version})-[r]->(m {version: $version})
		RETURN type(r) AS edge_type, 'out' AS direction,
		       m.id AS id, m.type AS type, m.name AS name
		UNION ALL
		MATCH (n {id: $id, version: $version})<-[r]-(m {version: $version})
		RETURN type(r) AS edge_type, 'in' AS direction,
		       m.id AS id, m.type AS type, m.name AS name
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": id, "version": version})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		neighbors := make([]Neighbor, 0, len(records))
		for _, record := range records {
			n := Neighbor{Node: Node{Version: version}}
			if v, ok := record.Get("edge_type"); ok {
				n.EdgeType, _ = v.(string)
			}
			if v, ok := record.Get("direction"); ok {
				n.Direction, _ = v.(string)
			}
			if v, ok := record.Get("id"); ok {
				n.Node.ID, _ = v.(string)
			}
			if v, ok := record.Get("type"); ok {
				n.Node.Type, _ = v.(string)
			}
			if v, ok := record.Get("name"); ok {
				n.Node.Name, _ = v.(string)
			}
			neighbors = append(neighbors, n)
		}
		return neighbors, nil
	})
	if err != nil {
		return nil, types.WrapError(types.GRAPH_STORE_FAILED, "neighbor query failed", err)
	}

	neighbors := result.([]Neighbor)
	sortNeighbors(neighbors)
	return neighbors, nil
}

func groupNodesByLabel(nodes []Node) map[string][]map[string]any {
	grouped := make(map[string][]map[string]any)
	for _, n := range nodes {
		label := NodeLabel(n.Type)
		grouped[label] = append(grouped[label], map[string]any{
			"id":      n.ID,
			"type":    n.Type,
			"name":    n.Name,
			"version": n.Version,
		})
	}
	return grouped
}

func groupEdgesByType(edges []Edge) map[string][]map[string]any {
	grouped := make(map[string][]map[string]any)
	for _, e := range edges {
		relType := RelType(e.Type)
		grouped[relType] = append(grouped[relType], map[string]any{
			"source":      e.SourceID,
			"target":      e.TargetID,
			"description": e.Description,
		})
	}
	return grouped
}

func chunkRows(rows []map[string]any, size int) [][]map[string]any {
	var chunks [][]map[string]any
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		chunks = append(chunks, rows)
	}
	return chunks
}

func sortNeighbors(neighbors []Neighbor) {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Direction != neighbors[j].Direction {
			return neighbors[i].Direction == DirectionOut
		}
		if neighbors[i].EdgeType != neighbors[j].EdgeType {
			return neighbors[i].EdgeType < neighbors[j].EdgeType
		}
		return neighbors[i].Node.ID < neighbors[j].Node.ID
	})
}
