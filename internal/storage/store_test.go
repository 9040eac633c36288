package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "chibi")
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func setupTestSQLite(t *testing.T) *SQLiteStore {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func storesUnderTest(t *testing.T) map[string]Store {
	redisStore, _ := setupTestRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": setupTestSQLite(t),
		"redis":  redisStore,
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_SetGetOverwriteDelete(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, KeyCartSessionKey, []byte("first")))
			require.NoError(t, store.Set(ctx, KeyCartSessionKey, []byte("second")))

			got, err := store.Get(ctx, KeyCartSessionKey)
			require.NoError(t, err)
			assert.Equal(t, "second", string(got))

			require.NoError(t, store.Delete(ctx, KeyCartSessionKey))
			_, err = store.Get(ctx, KeyCartSessionKey)
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting twice is not an error
			assert.NoError(t, store.Delete(ctx, KeyCartSessionKey))
		})
	}
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	store, mr := setupTestRedis(t)

	require.NoError(t, store.Set(context.Background(), KeyAccessToken, []byte("abc")))
	assert.True(t, mr.Exists("chibi:accessToken"))
	assert.Zero(t, mr.TTL("chibi:accessToken"))
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, KeyRefreshToken, []byte("r1")))
	require.NoError(t, store.Close())

	// migrations must be idempotent on an existing file
	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "r1", string(got))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
