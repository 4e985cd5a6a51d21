package client

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheFreshness(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(dir)
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "items:1:page:1:10", map[string]int{"total": 3}, 5*time.Minute))
	require.NoError(t, cache.Set(ctx, "invoice:last-number", "MPK/25-26/00004", 0))

	var got map[string]int
	ok, err := cache.Get(ctx, "items:1:page:1:10", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got["total"])

	now = now.Add(5*time.Minute + time.Second)
	ok, err = cache.Get(ctx, "items:1:page:1:10", &got)
	require.NoError(t, err)
	assert.False(t, ok, "entry past its ttl is stale")

	var number string
	ok, err = cache.Get(ctx, "invoice:last-number", &number)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "MPK/25-26/00004", number)
}

func TestFileCacheDeletePrefix(t *testing.T) {
	cache, err := NewFileCache(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"items:1:page:1:10", "items:1:page:2:10", "items:10:page:1:10"} {
		require.NoError(t, cache.Set(ctx, key, key, time.Minute))
	}
	require.NoError(t, cache.DeletePrefix(ctx, "items:1:"))

	var v string
	ok, _ := cache.Get(ctx, "items:1:page:2:10", &v)
	assert.False(t, ok)
	ok, _ = cache.Get(ctx, "items:10:page:1:10", &v)
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "items:10:page:1:10"))
	require.NoError(t, cache.Delete(ctx, "missing"))
	ok, _ = cache.Get(ctx, "items:10:page:1:10", &v)
	assert.False(t, ok)
}

func TestFileCacheDropsCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dir+"/"+fileName("k"), []byte("{not json"), 0o600))

	var v string
	ok, err := cache.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	assert.False(t, ok)
	_, statErr := os.Stat(dir + "/" + fileName("k"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Now()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a:1", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "a:2", 2, 0))
	now = now.Add(2 * time.Minute)

	var v int
	ok, _ := cache.Get(ctx, "a:1", &v)
	assert.False(t, ok)
	ok, _ = cache.Get(ctx, "a:2", &v)
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	require.NoError(t, cache.DeletePrefix(ctx, "a:"))
	ok, _ = cache.Get(ctx, "a:2", &v)
	assert.False(t, ok)
}
