package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedCategory struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := Instrument(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb), mr
}

func TestAside_LoadsOnceThenHits(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) ([]cachedCategory, error) {
		calls++
		return []cachedCategory{{Name: "Go", Count: 3}}, nil
	}

	first, err := Aside(ctx, store, CategoryListFamily, CategoryListKey, time.Minute, load)
	require.NoError(t, err)
	second, err := Aside(ctx, store, CategoryListFamily, CategoryListKey, time.Minute, load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists(CategoryListKey))
	assert.Equal(t, time.Minute, mr.TTL(CategoryListKey))

	store.Invalidate(ctx, CategoryListKey)
	assert.False(t, mr.Exists(CategoryListKey))

	_, err = Aside(ctx, store, CategoryListFamily, CategoryListKey, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAside_LoadErrorIsNotCached(t *testing.T) {
	store, mr := newTestStore(t)

	_, err := Aside(context.Background(), store, "test", "k", time.Minute, func(context.Context) (int, error) {
		return 0, errors.New("db down")
	})
	require.Error(t, err)
	assert.False(t, mr.Exists("k"))
}

func TestAside_RedisDownFallsThrough(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	got, err := Aside(context.Background(), store, "test", "k", time.Minute, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
}

func TestStore_NilClientIsNoop(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	assert.False(t, store.Enabled())
	found, err := store.GetJSON(ctx, "k", new(string))
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.SetJSON(ctx, "k", "v", time.Minute))
	store.Invalidate(ctx, "k")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "posts:42:thread", ThreadChannel(42))
}
