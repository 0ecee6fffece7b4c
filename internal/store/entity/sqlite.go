package entity

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corvus-sec/intelgraph/internal/types"
)

// Store is the read/write contract the ingest flow and the hybrid searcher
// use against the text+vector store.
type Store interface {
	// ReplaceVersion transactionally replaces all rows of one corpus
	// version. Running it twice with identical content leaves the stored
	// state unchanged.
	ReplaceVersion(ctx context.Context, version string, records []Record) error

	// Get returns one entity of a version by identifier.
	Get(ctx context.Context, version, id string) (*Record, error)

	// Count returns the number of entities stored for a version.
	Count(ctx context.Context, version string) (int, error)

	// SearchVector ranks a version's entities by cosine similarity against
	// the query embedding, descending, at most limit results.
	SearchVector(ctx context.Context, version string, embedding []float64, limit int) ([]Candidate, error)

	// SearchText ranks a version's entities by lexical substring match over
	// name and description, descending, at most limit results.
	SearchText(ctx context.Context, version, query string, limit int) ([]Candidate, error)

	// Health reports store health.
	Health(ctx context.Context) types.HealthStatus

	// Close releases the underlying database handle.
	Close() error
}

// SqliteStore is the SQLite implementation of Store. Embeddings are stored as
// little-endian float64 BLOBs; similarity search is brute-force in Go, which
// is adequate for corpora of tens of thousands of entities.
type SqliteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// SqliteConfig holds configuration for SqliteStore.
type SqliteConfig struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string

	// MaxConnections bounds the connection pool. Zero uses the default.
	MaxConnections int
}

// NewSqliteStore opens (and if needed initializes) the entity database.
func NewSqliteStore(cfg SqliteConfig) (*SqliteStore, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.INVALID_CONFIG, "entity store path cannot be empty")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}

	// A memory database lives and dies with its connection, so the pool
	// must hold exactly one and keep it idle forever; WAL only applies to
	// file-backed databases.
	inMemory := cfg.Path == ":memory:"
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", cfg.Path)
	if inMemory {
		dsn = "file::memory:?_foreign_keys=on"
		cfg.MaxConnections = 1
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to open database", err)
	}

	idle := cfg.MaxConnections / 2
	if idle < 1 {
		idle = 1
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(idle)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.WrapRetryableError(types.ENTITY_STORE_UNAVAILABLE, "failed to ping database", err)
	}

	s := &SqliteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to initialize schema", err)
	}
	return s, nil
}

func (s *SqliteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS entities (
			version     TEXT NOT NULL,
			id          TEXT NOT NULL,
			type        TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			metadata    TEXT,
			embedding   BLOB,
			PRIMARY KEY (version, id)
		);
		CREATE INDEX IF NOT EXISTS idx_entities_version_type ON entities(version, type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}
	return nil
}

// ReplaceVersion deletes and reinserts one version's rows in a single
// transaction.
func (s *SqliteStore) ReplaceVersion(ctx context.Context, version string, records []Record) error {
	if version == "" {
		return types.NewError(types.ENTITY_STORE_FAILED, "version cannot be empty")
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return types.WrapError(types.ENTITY_STORE_FAILED,
				fmt.Sprintf("invalid record at index %d", i), err)
		}
		if records[i].Version != version {
			return types.NewError(types.ENTITY_STORE_FAILED,
				fmt.Sprintf("record %s carries version %q, expected %q", records[i].ID, records[i].Version, version))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.NewRetryableError(types.ENTITY_STORE_UNAVAILABLE, "entity store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapRetryableError(types.ENTITY_STORE_FAILED, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE version = ?", version); err != nil {
		return types.WrapError(types.ENTITY_STORE_FAILED, "failed to clear version rows", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (version, id, type, name, description, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return types.WrapError(types.ENTITY_STORE_FAILED, "failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var metadataJSON []byte
		if r.Metadata != nil {
			metadataJSON, err = json.Marshal(r.Metadata)
			if err != nil {
				return types.WrapError(types.ENTITY_STORE_FAILED,
					fmt.Sprintf("failed to serialize metadata for %s", r.ID), err)
			}
		}
		var embeddingBytes []byte
		if len(r.Embedding) > 0 {
			embeddingBytes = serializeEmbedding(r.Embedding)
		}

		if _, err := stmt.ExecContext(ctx, version, r.ID, r.Type, r.Name, r.Description, metadataJSON, embeddingBytes); err != nil {
			return types.WrapError(types.ENTITY_STORE_FAILED,
				fmt.Sprintf("failed to insert entity %s", r.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.WrapRetryableError(types.ENTITY_STORE_FAILED, "failed to commit replace", err)
	}
	return nil
}

// Get returns one entity by identifier within a version.
func (s *SqliteStore) Get(ctx context.Context, version, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.ENTITY_STORE_UNAVAILABLE, "entity store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, name, description, metadata, embedding
		FROM entities WHERE version = ? AND id = ?
	`, version, id)

	rec, err := scanRecord(row, version)
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.ENTITY_NOT_FOUND,
			fmt.Sprintf("entity %q not found in version %s", id, version))
	}
	if err != nil {
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to read entity", err)
	}
	return rec, nil
}

// Count returns the number of entities stored for a version.
func (s *SqliteStore) Count(ctx context.Context, version string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, types.NewRetryableError(types.ENTITY_STORE_UNAVAILABLE, "entity store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE version = ?", version).Scan(&n); err != nil {
		return 0, types.WrapError(types.ENTITY_STORE_FAILED, "failed to count entities", err)
	}
	return n, nil
}

// SearchVector scans the version's rows and ranks them by cosine similarity.
// Rows without an embedding are skipped. Negative similarity clamps to 0 so
// scores stay in [0,1] for the hybrid blend.
func (s *SqliteStore) SearchVector(ctx context.Context, version string, embedding []float64, limit int) ([]Candidate, error) {
	if len(embedding) == 0 {
		return nil, types.NewError(types.INVALID_QUERY, "query embedding cannot be empty")
	}
	if limit <= 0 {
		return nil, types.NewError(types.INVALID_QUERY, fmt.Sprintf("limit must be positive, got %d", limit))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.ENTITY_STORE_UNAVAILABLE, "entity store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, description, metadata, embedding
		FROM entities WHERE version = ? AND embedding IS NOT NULL
	`, version)
	if err != nil {
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to query vectors", err)
	}
	defer rows.Close()

	candidates := make([]Candidate, 0, limit)
	for rows.Next() {
		rec, err := scanRecordRows(rows, version)
		if err != nil {
			return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to scan entity row", err)
		}
		if len(rec.Embedding) != len(embedding) {
			continue
		}
		score := cosineSimilarity(embedding, rec.Embedding)
		if score < 0 {
			score = 0
		}
		candidates = append(candidates, Candidate{
			ID:          rec.ID,
			Type:        rec.Type,
			Name:        rec.Name,
			Description: rec.Description,
			Metadata:    rec.Metadata,
			Score:       score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "error iterating rows", err)
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// SearchText matches the query as a case-insensitive substring of name or
// description and scores by match kind: exact name, name prefix, name
// substring, description substring.
func (s *SqliteStore) SearchText(ctx context.Context, version, query string, limit int) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Candidate{}, nil
	}
	if limit <= 0 {
		return nil, types.NewError(types.INVALID_QUERY, fmt.Sprintf("limit must be positive, got %d", limit))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, types.NewRetryableError(types.ENTITY_STORE_UNAVAILABLE, "entity store is closed")
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, description, metadata, embedding
		FROM entities
		WHERE version = ? AND (name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')
	`, version, pattern, pattern)
	if err != nil {
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to query text matches", err)
	}
	defer rows.Close()

	lowered := strings.ToLower(query)
	candidates := make([]Candidate, 0, limit)
	for rows.Next() {
		rec, err := scanRecordRows(rows, version)
		if err != nil {
			return nil, types.WrapError(types.ENTITY_STORE_FAILED, "failed to scan entity row", err)
		}
		candidates = append(candidates, Candidate{
			ID:          rec.ID,
			Type:        rec.Type,
			Name:        rec.Name,
			Description: rec.Description,
			Metadata:    rec.Metadata,
			Score:       lexicalScore(lowered, rec.Name, rec.Description),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.ENTITY_STORE_FAILED, "error iterating rows", err)
	}

	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Health reports store health with a row count.
func (s *SqliteStore) Health(ctx context.Context) types.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.Unhealthy("entity store is closed")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return types.Unhealthy(fmt.Sprintf("database ping failed: %v", err))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&count); err != nil {
		return types.Degraded(fmt.Sprintf("failed to count entities: %v", err))
	}
	return types.Healthy(fmt.Sprintf("entity store operational with %d rows", count))
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, version string) (*Record, error) {
	var rec Record
	var metadataJSON, embeddingBytes []byte
	if err := row.Scan(&rec.ID, &rec.Type, &rec.Name, &rec.Description, &metadataJSON, &embeddingBytes); err != nil {
		return nil, err
	}
	rec.Version = version
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	if len(embeddingBytes) > 0 {
		emb, err := deserializeEmbedding(embeddingBytes)
		if err != nil {
			return nil, err
		}
		rec.Embedding = emb
	}
	return &rec, nil
}

func scanRecordRows(rows *sql.Rows, version string) (*Record, error) {
	return scanRecord(rows, version)
}

// lexicalScore ranks a match by where the query appears. The query is
// already lower-cased.
func lexicalScore(query, name, description string) float64 {
	n := strings.ToLower(name)
	switch {
	case n == query:
		return scoreNameExact
	case strings.HasPrefix(n, query):
		return scoreNamePrefix
	case strings.Contains(n, query):
		return scoreNameContains
	case strings.Contains(strings.ToLower(description), query):
		return scoreDescContains
	default:
		return 0
	}
}

// escapeLike escapes LIKE wildcards so the query is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// sortCandidates orders by score descending, identifier ascending on ties,
// so repeated calls return a stable order.
func sortCandidates(c []Candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].ID < c[j].ID
	})
}

// cosineSimilarity computes the cosine of the angle between two equal-length
// vectors. Returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// serializeEmbedding encodes a float64 slice as a little-endian byte blob.
func serializeEmbedding(embedding []float64) []byte {
	buf := make([]byte, len(embedding)*8)
	for i, v := range embedding {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeEmbedding decodes a little-endian byte blob into float64s.
func deserializeEmbedding(data []byte) ([]float64, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(data))
	}
	embedding := make([]float64, len(data)/8)
	for i := range embedding {
		embedding[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return embedding, nil
}
