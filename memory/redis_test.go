package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

var _ core.MemoryStore = (*RedisStore)(nil)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "test:memory:", 0)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	written := core.NewSharedValue("s1", "w1", map[string]any{"count": float64(3)})
	require.NoError(t, store.Put(ctx, "s1", "sources", written))

	got, ok, err := store.Get(ctx, "s1", "sources")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "w1", got.WorkerID)
	require.Equal(t, written.Value, got.Value)

	_, ok, err = store.Get(ctx, "s1", "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRedisStore_ConfigConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "s1", "seed", core.NewSharedValue("s1", "w1", "x")))

	_, ok, err := store.Get(ctx, "s1", "seed")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewRedisStore_RequiresAddr(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{})
	require.Error(t, err)
}

func TestRedisStore_SessionScoped(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "s1", "seed", core.NewSharedValue("s1", "w1", "x")))

	_, ok, err := store.Get(ctx, "s2", "seed")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_SnapshotAndClear(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "s1", "research.sources", core.NewSharedValue("s1", "w1", "a")))
	require.NoError(t, store.Put(ctx, "s1", "draft.body", core.NewSharedValue("s1", "w2", "b")))

	snapshot, err := store.Snapshot(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	require.NoError(t, store.Clear(ctx, "s1", "research."))
	snapshot, err = store.Snapshot(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	require.NoError(t, store.Clear(ctx, "s1", ""))
	snapshot, err = store.Snapshot(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, snapshot)
}
