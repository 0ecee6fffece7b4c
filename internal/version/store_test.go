package version

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvus-sec/intelgraph/internal/corpus"
	"github.com/corvus-sec/intelgraph/internal/types"
)

// Both implementations run through the same contract suite.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSqliteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	mr := miniredis.RunT(t)
	rds, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rds.Close() })

	return map[string]Store{"sqlite": sqlite, "redis": rds}
}

func meta(version string, ingestedAt time.Time) corpus.VersionMetadata {
	return corpus.VersionMetadata{
		Version:           version,
		IngestedAt:        ingestedAt,
		EntityCount:       100,
		RelationshipCount: 250,
		SizeBytes:         4096,
	}
}

func TestGetActiveBeforeAnyIngest(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetActive(context.Background())
			require.Error(t, err)
			assert.Equal(t, types.VERSION_NOT_FOUND, types.CodeOf(err))
		})
	}
}

func TestSetActiveAndGetActive(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SetActive(ctx, meta("16.1", now.Add(-time.Hour))))
			require.NoError(t, s.SetActive(ctx, meta("17.0", now)))

			active, err := s.GetActive(ctx)
			require.NoError(t, err)
			assert.Equal(t, "17.0", active.Version)
			assert.Equal(t, 100, active.EntityCount)
			assert.Equal(t, 250, active.RelationshipCount)
		})
	}
}

func TestInactiveVersionsRemainQueryable(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SetActive(ctx, meta("16.1", now.Add(-time.Hour))))
			require.NoError(t, s.SetActive(ctx, meta("17.0", now)))

			old, err := s.GetMetadata(ctx, "16.1")
			require.NoError(t, err)
			assert.Equal(t, "16.1", old.Version)
		})
	}
}

func TestGetMetadataNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetMetadata(context.Background(), "99.9")
			require.Error(t, err)
			assert.Equal(t, types.VERSION_NOT_FOUND, types.CodeOf(err))
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SetActive(ctx, meta("15.0", now.Add(-2*time.Hour))))
			require.NoError(t, s.SetActive(ctx, meta("17.0", now)))
			require.NoError(t, s.SetActive(ctx, meta("16.1", now.Add(-time.Hour))))

			versions, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, versions, 3)
			assert.Equal(t, "17.0", versions[0].Version)
			assert.Equal(t, "16.1", versions[1].Version)
			assert.Equal(t, "15.0", versions[2].Version)
		})
	}
}

func TestReingestSameVersionUpdatesMetadata(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SetActive(ctx, meta("17.0", now.Add(-time.Minute))))

			updated := meta("17.0", now)
			updated.EntityCount = 101
			require.NoError(t, s.SetActive(ctx, updated))

			active, err := s.GetActive(ctx)
			require.NoError(t, err)
			assert.Equal(t, 101, active.EntityCount)

			versions, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, versions, 1)
		})
	}
}

func TestBundleRoundTrip(t *testing.T) {
	payload := []byte(`{"objects": []}`)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutBundle(ctx, "17.0", payload))

			data, err := s.Bundle(ctx, "17.0")
			require.NoError(t, err)
			assert.Equal(t, payload, data)
		})
	}
}

func TestBundleNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Bundle(context.Background(), "99.9")
			require.Error(t, err)
			assert.Equal(t, types.VERSION_NOT_FOUND, types.CodeOf(err))
		})
	}
}

func TestSetActiveRejectsInvalidMetadata(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.SetActive(context.Background(), corpus.VersionMetadata{})
			require.Error(t, err)
			assert.Equal(t, types.INVALID_CONFIG, types.CodeOf(err))
		})
	}
}

func TestHealth(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, s.Health(context.Background()).IsHealthy())
		})
	}
}

func TestSqliteClosedStore(t *testing.T) {
	s, err := NewSqliteStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetActive(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
	assert.False(t, s.Health(context.Background()).IsHealthy())
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer s.Close()

	mr.Close()

	_, err = s.GetActive(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.VERSION_STORE_FAILED, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))
}
