// Package config loads the engine configuration from YAML with ${VAR}
// environment interpolation and defaults for every omitted section.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/corvus-sec/intelgraph/internal/embedder"
	"github.com/corvus-sec/intelgraph/internal/graphquery"
	"github.com/corvus-sec/intelgraph/internal/ingest"
	"github.com/corvus-sec/intelgraph/internal/llm"
	"github.com/corvus-sec/intelgraph/internal/observability"
	"github.com/corvus-sec/intelgraph/internal/rag"
	"github.com/corvus-sec/intelgraph/internal/search"
	"github.com/corvus-sec/intelgraph/internal/store/graph"
	"github.com/corvus-sec/intelgraph/internal/types"
	"github.com/corvus-sec/intelgraph/internal/version"
)

// Config is the full engine configuration.
type Config struct {
	Log      LogConfig            `yaml:"log"`
	Entity   EntityConfig         `yaml:"entity_store"`
	Versions VersionsConfig       `yaml:"version_store"`
	Graph    GraphConfig          `yaml:"graph_store"`
	Embedder embedder.Config      `yaml:"embedder"`
	LLM      llm.Config           `yaml:"llm"`
	Ingest   IngestConfig         `yaml:"ingest"`
	Search   SearchConfig         `yaml:"search"`
	Rag      RagConfig            `yaml:"rag"`
	Tracing  observability.Config `yaml:"tracing"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// EntityConfig configures the SQLite entity store.
type EntityConfig struct {
	Path           string `yaml:"path"`
	MaxConnections int    `yaml:"max_connections"`
}

// VersionsConfig selects the version store backend.
type VersionsConfig struct {
	// Backend is "sqlite" or "redis".
	Backend string `yaml:"backend"`

	// Path is the SQLite database path for the sqlite backend.
	Path string `yaml:"path"`

	// Redis configures the redis backend.
	Redis version.RedisConfig `yaml:"redis"`
}

// GraphConfig selects the graph store backend.
type GraphConfig struct {
	// Backend is "memory" or "neo4j".
	Backend string `yaml:"backend"`

	// Neo4j configures the neo4j backend.
	Neo4j graph.Config `yaml:"neo4j"`
}

// IngestConfig tunes the ingest flow.
type IngestConfig struct {
	EmbedWorkers int `yaml:"embed_workers"`
}

// SearchConfig tunes the hybrid ranker and graph traversal.
type SearchConfig struct {
	// VectorWeight and LexicalWeight blend the two retrieval paths.
	VectorWeight  float64 `yaml:"vector_weight"`
	LexicalWeight float64 `yaml:"lexical_weight"`

	// Overfetch multiplies the per-path candidate fetch.
	Overfetch int `yaml:"overfetch"`

	// MaxHops is the hard ceiling for neighborhood expansion.
	MaxHops int `yaml:"max_hops"`
}

// RagConfig tunes grounded chat assembly.
type RagConfig struct {
	// TopK is how many search hits retrieval fetches for grounding.
	TopK int `yaml:"top_k"`

	// ContextTokens is the snippet token budget.
	ContextTokens int `yaml:"context_tokens"`
}

// Default returns the configuration used when no file is provided: local
// SQLite files, in-memory graph, mock model backends.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Entity: EntityConfig{
			Path:           "intelgraph-entities.db",
			MaxConnections: 10,
		},
		Versions: VersionsConfig{
			Backend: "sqlite",
			Path:    "intelgraph-versions.db",
		},
		Graph: GraphConfig{
			Backend: "memory",
			Neo4j:   graph.DefaultConfig(),
		},
		Embedder: embedder.DefaultConfig(),
		LLM:      llm.DefaultConfig(),
		Ingest:   IngestConfig{EmbedWorkers: ingest.DefaultEmbedWorkers},
		Search: SearchConfig{
			VectorWeight:  search.DefaultVectorWeight,
			LexicalWeight: search.DefaultLexicalWeight,
			Overfetch:     search.DefaultOverfetch,
			MaxHops:       graphquery.MaxHops,
		},
		Rag: RagConfig{
			TopK:          rag.DefaultTopK,
			ContextTokens: rag.DefaultContextTokens,
		},
		Tracing: observability.DefaultConfig(),
	}
}

// Load reads a YAML config file, interpolates ${VAR} references from the
// environment, fills defaults for omitted fields, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.INVALID_CONFIG,
			fmt.Sprintf("failed to read config file %s", path), err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	interpolated := interpolateEnv(string(data))
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, types.WrapError(types.INVALID_CONFIG, "failed to parse config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return types.NewError(types.INVALID_CONFIG,
			fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return types.NewError(types.INVALID_CONFIG,
			fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if c.Entity.Path == "" {
		return types.NewError(types.INVALID_CONFIG, "entity store path cannot be empty")
	}

	switch c.Versions.Backend {
	case "sqlite":
		if c.Versions.Path == "" {
			return types.NewError(types.INVALID_CONFIG, "version store path cannot be empty")
		}
	case "redis":
		if c.Versions.Redis.Addr == "" {
			return types.NewError(types.INVALID_CONFIG, "version store redis address cannot be empty")
		}
	default:
		return types.NewError(types.INVALID_CONFIG,
			fmt.Sprintf("unknown version store backend %q", c.Versions.Backend))
	}

	switch c.Graph.Backend {
	case "memory":
	case "neo4j":
		if err := c.Graph.Neo4j.Validate(); err != nil {
			return err
		}
	default:
		return types.NewError(types.INVALID_CONFIG,
			fmt.Sprintf("unknown graph store backend %q", c.Graph.Backend))
	}

	if err := c.Embedder.Validate(); err != nil {
		return err
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if c.Ingest.EmbedWorkers <= 0 {
		return types.NewError(types.INVALID_CONFIG, "embed workers must be positive")
	}

	if c.Search.VectorWeight < 0 || c.Search.LexicalWeight < 0 {
		return types.NewError(types.INVALID_CONFIG, "search weights cannot be negative")
	}
	if c.Search.VectorWeight+c.Search.LexicalWeight <= 0 {
		return types.NewError(types.INVALID_CONFIG, "search weights cannot both be zero")
	}
	if c.Search.Overfetch <= 0 {
		return types.NewError(types.INVALID_CONFIG, "search overfetch must be positive")
	}
	if c.Search.MaxHops <= 0 {
		return types.NewError(types.INVALID_CONFIG, "search max hops must be positive")
	}
	if c.Rag.TopK <= 0 {
		return types.NewError(types.INVALID_CONFIG, "rag top_k must be positive")
	}
	if c.Rag.ContextTokens <= 0 {
		return types.NewError(types.INVALID_CONFIG, "rag context tokens must be positive")
	}
	return c.Tracing.Validate()
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateEnv replaces ${VAR} with the environment value. Unset
// variables are left as-is so the failure surfaces in validation rather
// than as a silently empty field.
func interpolateEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}
