package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/corvus-sec/intelgraph/internal/corpus"
	"github.com/corvus-sec/intelgraph/internal/embedder"
	"github.com/corvus-sec/intelgraph/internal/store/entity"
	"github.com/corvus-sec/intelgraph/internal/store/graph"
	"github.com/corvus-sec/intelgraph/internal/types"
	"github.com/corvus-sec/intelgraph/internal/version"
)

// DefaultEmbedWorkers bounds concurrent embedding requests.
const DefaultEmbedWorkers = 8

// embedBatchSize bounds how many texts ride one provider request.
const embedBatchSize = 32

// Result summarizes one completed ingest.
type Result struct {
	JobID             string        `json:"job_id"`
	Version           string        `json:"version"`
	EntityCount       int           `json:"entity_count"`
	RelationshipCount int           `json:"relationship_count"`
	Duration          time.Duration `json:"duration"`
}

// Ingester drives the full ingest flow against the three stores.
type Ingester struct {
	embedder     embedder.Embedder
	entities     entity.Store
	graph        graph.Store
	versions     version.Store
	logger       *slog.Logger
	embedWorkers int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithEmbedWorkers sets the embedding concurrency.
func WithEmbedWorkers(n int) Option {
	return func(i *Ingester) {
		if n > 0 {
			i.embedWorkers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an Ingester.
func New(emb embedder.Embedder, entities entity.Store, g graph.Store, versions version.Store, opts ...Option) *Ingester {
	i := &Ingester{
		embedder:     emb,
		entities:     entities,
		graph:        g,
		versions:     versions,
		logger:       slog.Default(),
		embedWorkers: DefaultEmbedWorkers,
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// versionLock returns the mutex serializing ingests of one version.
func (i *Ingester) versionLock(v string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	lock, ok := i.locks[v]
	if !ok {
		lock = &sync.Mutex{}
		i.locks[v] = lock
	}
	return lock
}

// Ingest parses, validates, embeds, and commits a corpus bundle, returning
// once the version is active.
func (i *Ingester) Ingest(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()
	jobID := uuid.New().String()

	bundle, err := corpus.ParseBundle(data)
	if err != nil {
		return nil, err
	}
	if err := corpus.ValidateBundle(bundle); err != nil {
		return nil, err
	}

	logger := i.logger.With(
		slog.String("job_id", jobID),
		slog.String("version", bundle.Version),
	)
	logger.Info("ingest started",
		slog.Int("entities", len(bundle.Entities)),
		slog.Int("relationships", len(bundle.Relationships)),
	)

	lock := i.versionLock(bundle.Version)
	lock.Lock()
	defer lock.Unlock()

	records, err := i.embedEntities(ctx, bundle)
	if err != nil {
		return nil, err
	}
	logger.Debug("embeddings generated", slog.Int("count", len(records)))

	if err := i.entities.ReplaceVersion(ctx, bundle.Version, records); err != nil {
		return nil, types.WrapError(types.INGEST_INTERRUPTED,
			fmt.Sprintf("entity store write failed for version %s", bundle.Version), err)
	}
	logger.Debug("entity store populated")

	nodes, edges := graphShape(bundle)
	if err := i.graph.ReplaceVersion(ctx, bundle.Version, nodes, edges); err != nil {
		return nil, types.WrapError(types.INGEST_INTERRUPTED,
			fmt.Sprintf("graph store write failed for version %s", bundle.Version), err)
	}
	logger.Debug("graph store populated")

	if err := i.versions.PutBundle(ctx, bundle.Version, data); err != nil {
		return nil, types.WrapError(types.INGEST_INTERRUPTED,
			fmt.Sprintf("bundle archive failed for version %s", bundle.Version), err)
	}

	meta := corpus.VersionMetadata{
		Version:           bundle.Version,
		IngestedAt:        time.Now().UTC(),
		EntityCount:       len(bundle.Entities),
		RelationshipCount: len(bundle.Relationships),
		SizeBytes:         int64(len(data)),
	}
	if err := i.versions.SetActive(ctx, meta); err != nil {
		return nil, types.WrapError(types.INGEST_INTERRUPTED,
			fmt.Sprintf("activation failed for version %s", bundle.Version), err)
	}

	result := &Result{
		JobID:             jobID,
		Version:           bundle.Version,
		EntityCount:       len(bundle.Entities),
		RelationshipCount: len(bundle.Relationships),
		Duration:          time.Since(start),
	}
	logger.Info("ingest complete", slog.Duration("duration", result.Duration))
	return result, nil
}

// embedEntities turns bundle entities into store records, generating
// embeddings in batched provider calls over a bounded worker pool.
// Entities with no embeddable text get no vector and stay reachable
// through lexical search only.
func (i *Ingester) embedEntities(ctx context.Context, bundle *corpus.Bundle) ([]entity.Record, error) {
	records := make([]entity.Record, len(bundle.Entities))
	var embeddable []int
	for idx := range bundle.Entities {
		e := &bundle.Entities[idx]
		records[idx] = entity.Record{
			ID:          e.ID,
			Type:        e.Type,
			Name:        e.Name,
			Description: e.Description,
			Metadata:    e.Metadata,
			Version:     bundle.Version,
		}
		if e.EmbeddingText() != "" {
			embeddable = append(embeddable, idx)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.embedWorkers)

	for start := 0; start < len(embeddable); start += embedBatchSize {
		chunk := embeddable[start:min(start+embedBatchSize, len(embeddable))]
		g.Go(func() error {
			texts := make([]string, len(chunk))
			for k, idx := range chunk {
				texts[k] = bundle.Entities[idx].EmbeddingText()
			}

			vectors, err := i.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return types.WrapError(types.INGEST_INTERRUPTED,
					fmt.Sprintf("embedding failed for batch starting at entity %s", bundle.Entities[chunk[0]].ID), err)
			}
			if len(vectors) != len(chunk) {
				return types.NewError(types.INGEST_INTERRUPTED,
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(vectors), len(chunk)))
			}

			for k, idx := range chunk {
				records[idx].Embedding = vectors[k]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// graphShape projects the bundle onto graph nodes and edges.
func graphShape(bundle *corpus.Bundle) ([]graph.Node, []graph.Edge) {
	nodes := make([]graph.Node, len(bundle.Entities))
	for idx, e := range bundle.Entities {
		nodes[idx] = graph.Node{
			ID:      e.ID,
			Type:    e.Type,
			Name:    e.Name,
			Version: bundle.Version,
		}
	}
	edges := make([]graph.Edge, len(bundle.Relationships))
	for idx, r := range bundle.Relationships {
		edges[idx] = graph.Edge{
			SourceID:    r.SourceRef,
			TargetID:    r.TargetRef,
			Type:        r.Type,
			Description: r.Description,
		}
	}
	return nodes, edges
}
