package resource

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCachePutGet(t *testing.T) {
	cache, err := OpenQueryCache(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer cache.Close()

	_, found, err := cache.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put("k1", []byte(`{"raw":"hello"}`)))

	payload, found, err := cache.Get("k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"raw":"hello"}`, string(payload))
}

func TestQueryCacheReplaceAndClear(t *testing.T) {
	cache, err := OpenQueryCache(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, cache.Put("k", []byte("one")))
	require.NoError(t, cache.Put("k", []byte("two")))

	payload, found, err := cache.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "two", string(payload))

	n, err := cache.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, cache.Clear())
	n, err = cache.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueryCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	cache, err := OpenQueryCache(path, nil)
	require.NoError(t, err)
	require.NoError(t, cache.Put("k", []byte("v")))
	require.NoError(t, cache.Close())

	reopened, err := OpenQueryCache(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	payload, found, err := reopened.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v", string(payload))
}
