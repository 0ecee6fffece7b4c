package version

import (
	"context"

	"github.com/corvus-sec/intelgraph/internal/corpus"
	"github.com/corvus-sec/intelgraph/internal/types"
)

// Store is the version bookkeeping contract.
type Store interface {
	// SetActive records metadata for a version and atomically makes it the
	// active one. This is the final step of an ingest.
	SetActive(ctx context.Context, meta corpus.VersionMetadata) error

	// GetActive returns the metadata of the active version, or
	// VERSION_NOT_FOUND when no version has ever been activated.
	GetActive(ctx context.Context) (*corpus.VersionMetadata, error)

	// GetMetadata returns the metadata of one version, active or not.
	GetMetadata(ctx context.Context, version string) (*corpus.VersionMetadata, error)

	// List returns the metadata of every known version, newest ingest
	// first.
	List(ctx context.Context) ([]corpus.VersionMetadata, error)

	// PutBundle stores the raw bundle bytes of a version for later
	// download.
	PutBundle(ctx context.Context, version string, data []byte) error

	// Bundle returns the raw bundle bytes of a version.
	Bundle(ctx context.Context, version string) ([]byte, error)

	// Health reports store health.
	Health(ctx context.Context) types.HealthStatus

	// Close releases underlying resources.
	Close() error
}
