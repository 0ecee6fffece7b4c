package version

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/corvus-sec/intelgraph/internal/corpus"
	"github.com/corvus-sec/intelgraph/internal/types"
)

// Redis key layout. All keys share a prefix so several deployments can
// share one Redis instance.
const (
	keyActive      = "%s:version:active"
	keyMeta        = "%s:version:meta:%s"
	keyBundle      = "%s:version:bundle:%s"
	keyVersionsSet = "%s:versions"
)

// RedisStore is the Redis implementation of Store for shared deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection settings for the Redis version store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, types.NewError(types.INVALID_CONFIG, "redis address cannot be empty")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "intelgraph"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to ping redis", err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

// SetActive records the version metadata and flips the active pointer in a
// single MULTI/EXEC pipeline.
func (s *RedisStore) SetActive(ctx context.Context, meta corpus.VersionMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return types.WrapError(types.VERSION_STORE_FAILED, "failed to serialize metadata", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(keyMeta, s.prefix, meta.Version), payload, 0)
	pipe.SAdd(ctx, fmt.Sprintf(keyVersionsSet, s.prefix), meta.Version)
	pipe.Set(ctx, fmt.Sprintf(keyActive, s.prefix), meta.Version, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to activate version", err)
	}
	return nil
}

// GetActive returns the metadata of the active version.
func (s *RedisStore) GetActive(ctx context.Context) (*corpus.VersionMetadata, error) {
	version, err := s.client.Get(ctx, fmt.Sprintf(keyActive, s.prefix)).Result()
	if err == redis.Nil {
		return nil, types.NewError(types.VERSION_NOT_FOUND, "no corpus version has been ingested")
	}
	if err != nil {
		return nil, types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to read active pointer", err)
	}
	return s.GetMetadata(ctx, version)
}

// GetMetadata returns one version's metadata.
func (s *RedisStore) GetMetadata(ctx context.Context, version string) (*corpus.VersionMetadata, error) {
	payload, err := s.client.Get(ctx, fmt.Sprintf(keyMeta, s.prefix, version)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("version %q not found", version))
	}
	if err != nil {
		return nil, types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to read version metadata", err)
	}

	var meta corpus.VersionMetadata
	if err := json.Unmarshal(payload, &meta); err != nil {
		return nil, types.WrapError(types.VERSION_STORE_FAILED, "failed to decode version metadata", err)
	}
	return &meta, nil
}

// List returns all known versions, newest ingest first.
func (s *RedisStore) List(ctx context.Context) ([]corpus.VersionMetadata, error) {
	versions, err := s.client.SMembers(ctx, fmt.Sprintf(keyVersionsSet, s.prefix)).Result()
	if err != nil {
		return nil, types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to list versions", err)
	}

	out := make([]corpus.VersionMetadata, 0, len(versions))
	for _, v := range versions {
		meta, err := s.GetMetadata(ctx, v)
		if err != nil {
			if types.CodeOf(err) == types.VERSION_NOT_FOUND {
				continue
			}
			return nil, err
		}
		out = append(out, *meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.After(out[j].IngestedAt)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// PutBundle stores the raw bundle bytes of a version.
func (s *RedisStore) PutBundle(ctx context.Context, version string, data []byte) error {
	if version == "" {
		return types.NewError(types.VERSION_STORE_FAILED, "version cannot be empty")
	}
	if len(data) == 0 {
		return types.NewError(types.VERSION_STORE_FAILED, "bundle data cannot be empty")
	}
	if err := s.client.Set(ctx, fmt.Sprintf(keyBundle, s.prefix, version), data, 0).Err(); err != nil {
		return types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to store bundle", err)
	}
	return nil
}

// Bundle returns the raw bundle bytes of a version.
func (s *RedisStore) Bundle(ctx context.Context, version string) ([]byte, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(keyBundle, s.prefix, version)).Bytes()
	if err == redis.Nil {
		return nil, types.NewError(types.VERSION_NOT_FOUND,
			fmt.Sprintf("no bundle stored for version %q", version))
	}
	if err != nil {
		return nil, types.WrapRetryableError(types.VERSION_STORE_FAILED, "failed to read bundle", err)
	}
	return data, nil
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) types.HealthStatus {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return types.Unhealthy(fmt.Sprintf("redis ping failed: %v", err))
	}
	return types.Healthy("version store operational")
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
