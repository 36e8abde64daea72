package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
	getErr  error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	var dest []string
	hit, err := cache.Get(ctx, reportCacheKey("school-1", "students"), &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Set(ctx, reportCacheKey("school-1", "students"), []string{"NA20260001"}, 0))
	require.NoError(t, cache.Set(ctx, reportCacheKey("school-2", "students"), []string{"NA20260009"}, 0))

	hit, err = cache.Get(ctx, reportCacheKey("school-1", "students"), &dest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"NA20260001"}, dest)

	require.NoError(t, cache.Invalidate(ctx, reportCachePattern("school-1")))
	assert.NotContains(t, repo.entries, reportCacheKey("school-1", "students"))
	assert.Contains(t, repo.entries, reportCacheKey("school-2", "students"))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, 0, nil, false)

	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
	assert.Empty(t, repo.entries)
	hit, err := cache.Get(context.Background(), "k", new(string))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection refused")
	cache := NewCacheService(repo, nil, 0, nil, true)

	_, err := cache.Get(context.Background(), "k", new(string))
	assert.Error(t, err)
}

func TestReportCacheKeySanitizes(t *testing.T) {
	assert.Equal(t, "reports:school|1:students:class_1", reportCacheKey("school:1", "students", "", "class*1"))
	assert.Equal(t, "reports:school|1:*", reportCachePattern("school:1"))
}
