package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutGet(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	err = store.Put(ctx, "models/domain_classifier.json", []byte(`{"type":"bayes"}`))
	require.NoError(t, err)

	data, err := store.Get(ctx, "models/domain_classifier.json")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"bayes"}`, string(data))
}

func TestLocalStoreGetMissing(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "models/absent.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreOverwrite(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a.json", []byte("one")))
	require.NoError(t, store.Put(ctx, "a.json", []byte("two")))

	data, err := store.Get(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestLocalStoreExists(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	ok, err := store.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "present.json", []byte("x")))
	ok, err = store.Exists(ctx, "present.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStoreDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a.json", []byte("x")))
	require.NoError(t, store.Delete(ctx, "a.json"))

	_, err = store.Get(ctx, "a.json")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.Delete(ctx, "a.json"))
}

func TestLocalStoreList(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "models/manifest.json", []byte("m")))
	require.NoError(t, store.Put(ctx, "models/intent_classifiers/smart_home.json", []byte("i")))
	require.NoError(t, store.Put(ctx, "other/readme.txt", []byte("r")))

	keys, err := store.List(ctx, "models/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"models/intent_classifiers/smart_home.json",
		"models/manifest.json",
	}, keys)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStoreListEmptyRoot(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	keys, err := store.List(context.Background(), "models/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, nil)
	require.NoError(t, err)

	ctx := context.Background()
	err = store.Put(ctx, "../outside.json", []byte("x"))
	assert.Error(t, err)

	_, err = store.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreCreatesNestedDirs(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, nil)
	require.NoError(t, err)

	key := "models/cache/20240101120000/role_classifiers/smart_home.set_temperature.room.json"
	require.NoError(t, store.Put(context.Background(), key, []byte("deep")))

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(key)))
	assert.NoError(t, err)
}
