package graph

import (
	"strings"
	"time"
	"unicode"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Node is one graph vertex: the identity slice of a corpus entity. Full
// documents live in the entity store; the graph keeps only what traversal
// and labeling need.
type Node struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version"`
}

// Validate ensures the node can be stored.
func (n *Node) Validate() error {
	if n.ID == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "node ID cannot be empty")
	}
	if n.Type == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "node type cannot be empty")
	}
	if n.Version == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "node version cannot be empty")
	}
	return nil
}

// Edge is one directed relationship between two nodes of the same version.
type Edge struct {
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id"`
	Type        string `json:"relationship_type"`
	Description string `json:"description,omitempty"`
}

// Validate ensures the edge can be stored.
func (e *Edge) Validate() error {
	if e.SourceID == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "edge source cannot be empty")
	}
	if e.TargetID == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "edge target cannot be empty")
	}
	if e.Type == "" {
		return types.NewError(types.GRAPH_STORE_FAILED, "edge type cannot be empty")
	}
	return nil
}

// Neighbor is one traversal result: the node reached plus the edge that
// reached it. Direction records whether the edge was followed forward
// ("out") or backward ("in") from the origin node.
type Neighbor struct {
	Node      Node   `json:"node"`
	EdgeType  string `json:"edge_type"`
	Direction string `json:"direction"`
}

// Edge directions as seen from the node being expanded.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Config holds connection settings for the Neo4j store.
type Config struct {
	URI      string `yaml:"uri" json:"uri"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`

	MaxConnectionPoolSize int           `yaml:"max_connection_pool_size" json:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `yaml:"connection_timeout" json:"connection_timeout"`

	// BatchSize bounds how many nodes or edges one UNWIND statement writes.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// DefaultConfig returns a Config with sensible local defaults.
func DefaultConfig() Config {
	return Config{
		URI:                   "bolt://localhost:7687",
		Username:              "neo4j",
		Database:              "neo4j",
		MaxConnectionPoolSize: 50,
		ConnectionTimeout:     30 * time.Second,
		BatchSize:             500,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.URI == "" {
		return types.NewError(types.INVALID_CONFIG, "graph store URI cannot be empty")
	}
	if c.MaxConnectionPoolSize <= 0 {
		return types.NewError(types.INVALID_CONFIG, "max connection pool size must be positive")
	}
	if c.ConnectionTimeout <= 0 {
		return types.NewError(types.INVALID_CONFIG, "connection timeout must be positive")
	}
	if c.BatchSize <= 0 {
		return types.NewError(types.INVALID_CONFIG, "batch size must be positive")
	}
	return nil
}

// NodeLabel converts a corpus entity type into a Cypher label:
// "attack-pattern" becomes "AttackPattern". Characters outside
// [A-Za-z0-9] act as word separators and are dropped. An empty or fully
// non-alphanumeric type falls back to "Entity".
func NodeLabel(entityType string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range entityType {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Entity"
	}
	return b.String()
}

// RelType converts a corpus relationship type into a Cypher relationship
// type: "subtechnique-of" becomes "SUBTECHNIQUE_OF". An empty or fully
// non-alphanumeric type falls back to "RELATED_TO".
func RelType(relationshipType string) string {
	var b strings.Builder
	sepPending := false
	for _, r := range relationshipType {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			if b.Len() > 0 {
				sepPending = true
			}
			continue
		}
		if sepPending {
			b.WriteByte('_')
			sepPending = false
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	if b.Len() == 0 {
		return "RELATED_TO"
	}
	return b.String()
}
