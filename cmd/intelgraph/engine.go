package main

import (
	"context"
	"os"

	"github.com/corvus-sec/intelgraph/internal/config"
	"github.com/corvus-sec/intelgraph/internal/embedder"
	"github.com/corvus-sec/intelgraph/internal/graphquery"
	"github.com/corvus-sec/intelgraph/internal/ingest"
	"github.com/corvus-sec/intelgraph/internal/llm"
	"github.com/corvus-sec/intelgraph/internal/observability"
	"github.com/corvus-sec/intelgraph/internal/rag"
	"github.com/corvus-sec/intelgraph/internal/search"
	"github.com/corvus-sec/intelgraph/internal/store/entity"
	"github.com/corvus-sec/intelgraph/internal/store/graph"
	"github.com/corvus-sec/intelgraph/internal/version"

	"log/slog"
)

// engine wires the full stack from configuration. Commands use the subset
// they need; close tears everything down in reverse order.
type engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *observability.Telemetry

	entities entity.Store
	graph    graph.Store
	versions version.Store
	embedder embedder.Embedder
	llm      llm.Provider

	ingester ingest.Runner
	searcher search.Searcher
	resolver *graphquery.Resolver
	rag      *rag.Assembler
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	telemetry, err := observability.Init(ctx, logger, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, logger: logger, telemetry: telemetry}

	e.entities, err = entity.NewSqliteStore(entity.SqliteConfig{
		Path:           cfg.Entity.Path,
		MaxConnections: cfg.Entity.MaxConnections,
	})
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	switch cfg.Versions.Backend {
	case "redis":
		e.versions, err = version.NewRedisStore(ctx, cfg.Versions.Redis)
	default:
		e.versions, err = version.NewSqliteStore(cfg.Versions.Path)
	}
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	switch cfg.Graph.Backend {
	case "neo4j":
		neo, err := graph.NewNeo4jStore(cfg.Graph.Neo4j)
		if err != nil {
			e.close(ctx)
			return nil, err
		}
		if err := neo.Connect(ctx); err != nil {
			e.close(ctx)
			return nil, err
		}
		e.graph = neo
	default:
		e.graph = graph.NewMemoryStore()
	}

	e.embedder, err = embedder.New(cfg.Embedder)
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	e.llm, err = llm.New(cfg.LLM)
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	ingester := ingest.New(e.embedder, e.entities, e.graph, e.versions,
		ingest.WithEmbedWorkers(cfg.Ingest.EmbedWorkers),
		ingest.WithLogger(logger),
	)
	e.ingester, err = ingest.NewTracedIngester(ingester,
		telemetry.Tracer("intelgraph/ingest"),
		telemetry.Meter("intelgraph/ingest"),
	)
	if err != nil {
		e.close(ctx)
		return nil, err
	}

	hybrid := search.NewHybrid(e.entities, e.embedder, e.versions, logger,
		search.WithWeights(cfg.Search.VectorWeight, cfg.Search.LexicalWeight),
		search.WithOverfetch(cfg.Search.Overfetch),
	)
	traced, err := search.NewTracedSearcher(hybrid,
		telemetry.Tracer("intelgraph/search"),
		telemetry.Meter("intelgraph/search"),
	)
	if err != nil {
		e.close(ctx)
		return nil, err
	}
	e.searcher = traced

	e.resolver = graphquery.NewResolver(e.graph, e.versions, logger,
		graphquery.WithMaxHops(cfg.Search.MaxHops),
	)
	e.rag = rag.New(e.searcher, e.llm,
		rag.WithLogger(logger),
		rag.WithTopK(cfg.Rag.TopK),
		rag.WithContextTokens(cfg.Rag.ContextTokens),
	)

	return e, nil
}

func (e *engine) close(ctx context.Context) {
	if e.graph != nil {
		if err := e.graph.Close(ctx); err != nil {
			e.logger.Warn("failed to close graph store", "error", err)
		}
	}
	if e.versions != nil {
		if err := e.versions.Close(); err != nil {
			e.logger.Warn("failed to close version store", "error", err)
		}
	}
	if e.entities != nil {
		if err := e.entities.Close(); err != nil {
			e.logger.Warn("failed to close entity store", "error", err)
		}
	}
	if e.telemetry != nil {
		if err := e.telemetry.Shutdown(ctx); err != nil {
			e.logger.Warn("failed to shut down telemetry", "error", err)
		}
	}
}
