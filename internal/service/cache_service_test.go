package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
)

type memoryCacheRepo struct {
	data     map[string][]byte
	ttls     map[string]time.Duration
	patterns []string
	err      error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.err != nil {
		return m.err
	}
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return m.err
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	var out []string
	found, err := svc.Get(ctx, "catalog:repositories", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, svc.Set(ctx, "catalog:repositories", []string{"rastion/tsp"}, 0))
	assert.Equal(t, time.Minute, repo.ttls["catalog:repositories"])

	found, err = svc.Get(ctx, "catalog:repositories", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"rastion/tsp"}, out)

	require.NoError(t, svc.Invalidate(ctx, "catalog:*"))
	assert.Equal(t, []string{"catalog:*"}, repo.patterns)

	body := scrape(t, metrics)
	assert.Contains(t, body, `cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `cache_lookups_total{result="miss"} 1`)
}

func TestCacheServiceBackendFailure(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.err = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out []string
	found, err := svc.Get(context.Background(), "k", &out)
	assert.False(t, found)
	assert.Error(t, err)
	assert.Error(t, svc.Set(context.Background(), "k", "v", time.Second))
	assert.Error(t, svc.Invalidate(context.Background(), "k*"))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, svc.Set(context.Background(), "k", "v", 0))
	assert.Empty(t, repo.data)
	var out string
	found, err := svc.Get(context.Background(), "k", &out)
	require.NoError(t, err)
	assert.False(t, found)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}
