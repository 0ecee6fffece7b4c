package version

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corvus-sec/intelgraph/internal/corpus"
	"github.com/corvus-sec/intelgraph/internal/types"
)

// SqliteStore is the SQLite implementation of Store. The active pointer
// lives in a single-row table so activation is one UPDATE inside the same
// transaction that records the metadata.
type SqliteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewSqliteStore opens (and if needed initializes) the version database.
// Path may be ":memory:" for tests.
func NewSqliteStore(path string) (*SqliteStore, error) {
	if path == "" {
		return nil, types.NewError(types.INVALID_CONFIG, "version store path cannot be empty")
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to ping database", err)
	}

	s := &SqliteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to initialize schema", err)
	}
	return s, nil
}

func (s *SqliteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS versions (
			version            TEXT PRIMARY KEY,
			ingested_at        TIMESTAMP NOT NULL,
			entity_count       INTEGER NOT NULL,
			relationship_count INTEGER NOT NULL,
			size_bytes         INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS active_version (
			singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
			version   TEXT NOT NULL REFERENCES versions(version)
		);
		CREATE TABLE IF NOT EXISTS bundles (
			version TEXT PRIMARY KEY,
			data    BLOB NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create version tables: %w", err)
	}
	return nil
}

// SetActive records the version metadata and flips the active pointer in
// one transaction.
func (s *SqliteStore) SetActive(ctx context.Context, meta corpus.VersionMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewRetryableError(types.VERSION_STORE_FAILED, "version store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO versions (version, ingested_at, entity_count, relationship_count, size_bytes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET
			ingested_at = excluded.ingested_at,
			entity_count = excluded.entity_count,
			relationship_count = excluded.relationship_count,
			size_bytes = excluded.size_bytes
	`, meta.Version, meta.IngestedAt.UTC(), meta.EntityCount, meta.RelationshipCount, meta.SizeBytes); err != nil {
		return types.WrapError(types.VERSION_STORE_FAILED, "failed to record version metadata", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO active_version (singleton, version) VALUES (1, ?)
		ON CONFLICT(singleton) DO UPDATE SET version = excluded.version
	`, meta.Version); err != nil {
		return types.WrapError(types.VERSION_STORE_FAILED, "failed to flip active pointer", err)
	}

	if err := tx.Commit(); err != nil {
		return types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to commit activation", err)
	}
	return nil
}

// GetActive returns the metadata of the active version.
func (s *SqliteStore) GetActive(ctx context.Context) (*corpus.VersionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.VERSION_STORE_FAILED, "version store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT v.version, v.ingested_at, v.entity_count, v.relationship_count, v.size_bytes
		FROM active_version a JOIN versions v ON v.version = a.version
		WHERE a.singleton = 1
	`)
	meta, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.VERSION_NOT_FOUND, "no corpus version has been ingested")
	}
	if err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to read active version", err)
	}
	return meta, nil
}

// GetMetadata returns one version's metadata.
func (s *SqliteStore) GetMetadata(ctx context.Context, version string) (*corpus.VersionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.VERSION_STORE_FAILED, "version store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT version, ingested_at, entity_count, relationship_count, size_bytes
		FROM versions WHERE version = ?
	`, version)
	meta, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("version %q not found", version))
	}
	if err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to read version metadata", err)
	}
	return meta, nil
}

// List returns all known versions, newest ingest first.
func (s *SqliteStore) List(ctx context.Context) ([]corpus.VersionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.VERSION_STORE_FAILED, "version store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, ingested_at, entity_count, relationship_count, size_bytes
		FROM versions ORDER BY ingested_at DESC, version DESC
	`)
	if err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to list versions", err)
	}
	defer rows.Close()

	var out []corpus.VersionMetadata
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to scan version row", err)
		}
		out = append(out, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "error iterating versions", err)
	}
	return out, nil
}

// PutBundle stores the raw bundle bytes of a version.
func (s *SqliteStore) PutBundle(ctx context.Context, version string, data []byte) error {
	if version == "" {
		return types.NewError(types.VERSION_STORE_FAILED, "version cannot be empty")
	}
	if len(data) == 0 {
		return types.NewError(types.VERSION_STORE_FAILED, "bundle data cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewRetryableError(types.VERSION_STORE_FAILED, "version store is closed")
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bundles (version, data) VALUES (?, ?)
		ON CONFLICT(version) DO UPDATE SET data = excluded.data
	`, version, data); err != nil {
		return types.WrapError(types.VERSION_STORE_FAILED, "failed to store bundle", err)
	}
	return nil
}

// Bundle returns the raw bundle bytes of a version.
func (s *SqliteStore) Bundle(ctx context.Context, version string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.VERSION_STORE_FAILED, "version store is closed")
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM bundles WHERE version = ?", version).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("no bundle stored for version %q", version))
	}
	if err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to read bundle", err)
	}
	return data, nil
}

// Health reports store health.
func (s *SqliteStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Unhealthy("version store is closed")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("database ping failed: %v", err))
	}
	return types.Healthy("version store operational")
}

// Close releases the database handle.
func (s *SqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type metadataScanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row metadataScanner) (*corpus.VersionMetadata, error) {
	var meta corpus.VersionMetadata
	var ingestedAt time.Time
	if err := row.Scan(&meta.Version, &ingestedAt, &meta.EntityCount, &meta.RelationshipCount, &meta.SizeBytes); err != nil {
		return nil, err
	}
	meta.IngestedAt = ingestedAt.UTC()
	return &meta, nil
}
