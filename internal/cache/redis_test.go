package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis server and returns a RedisCache instance
func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

const cartJSON = `[{"id":"a","product_id":"P1","user_id":null,"quantity":2}]`

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	mr.Set(storageKey("dev-1", "cart-guest"), cartJSON)

	data, err := cache.ForDevice("dev-1").Get(context.Background(), "cart-guest")
	require.NoError(t, err)
	assert.JSONEq(t, cartJSON, string(data))
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	data, err := cache.ForDevice("dev-1").Get(context.Background(), "cart-guest")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, data)
}

func TestGet_ConnectionError(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.ForDevice("dev-1").Get(context.Background(), "cart-guest")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	err := cache.ForDevice("dev-1").Set(context.Background(), "cart-u1", []byte(cartJSON))
	require.NoError(t, err)

	stored, err := mr.Get(storageKey("dev-1", "cart-u1"))
	require.NoError(t, err)
	assert.JSONEq(t, cartJSON, stored)
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	err := cache.ForDevice("dev-1").Set(context.Background(), "cart-u1", []byte(cartJSON))
	require.NoError(t, err)

	ttl := mr.TTL(storageKey("dev-1", "cart-u1"))
	assert.GreaterOrEqual(t, ttl, 30*24*time.Hour)
	assert.Less(t, ttl, 30*24*time.Hour+5*time.Minute)

	mr.FastForward(31 * 24 * time.Hour)
	assert.False(t, mr.Exists(storageKey("dev-1", "cart-u1")))
}

func TestDelete_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Set(storageKey("dev-1", "cart-u1"), cartJSON)

	require.NoError(t, cache.ForDevice("dev-1").Delete(context.Background(), "cart-u1"))
	assert.False(t, mr.Exists(storageKey("dev-1", "cart-u1")))
}

func TestDelete_NonExistentKey(t *testing.T) {
	cache, _ := setupTestRedis(t)

	assert.NoError(t, cache.ForDevice("dev-1").Delete(context.Background(), "cart-u1"))
}

func TestForDevice_Isolated(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.ForDevice("dev-1").Set(ctx, "cart-guest", []byte(cartJSON)))

	_, err := cache.ForDevice("dev-2").Get(ctx, "cart-guest")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDeleteEverywhere(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	for _, dev := range []string{"dev-1", "dev-2", "dev-3"} {
		mr.Set(storageKey(dev, "cart-u1"), cartJSON)
	}
	mr.Set(storageKey("dev-1", "cart-guest"), cartJSON)
	mr.Set(storageKey("dev-2", "cart-u10"), cartJSON)

	n, err := cache.DeleteEverywhere(ctx, "cart-u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.False(t, mr.Exists(storageKey("dev-1", "cart-u1")))
	assert.False(t, mr.Exists(storageKey("dev-3", "cart-u1")))
	assert.True(t, mr.Exists(storageKey("dev-1", "cart-guest")))
	assert.True(t, mr.Exists(storageKey("dev-2", "cart-u10")))
}

func TestDeleteEverywhere_NoMatches(t *testing.T) {
	cache, _ := setupTestRedis(t)

	n, err := cache.DeleteEverywhere(context.Background(), "cart-u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPing(t *testing.T) {
	cache, _ := setupTestRedis(t)

	assert.NoError(t, cache.Ping(context.Background()))
}

func TestStorageKey_Format(t *testing.T) {
	assert.Equal(t, "device:abc:cart-guest", storageKey("abc", "cart-guest"))
	assert.Equal(t, "device:abc:cart-42", storageKey("abc", "cart-42"))
}

func TestDeleteEverywhere_EscapesGlob(t *testing.T) {
	cache, mr := setupTestRedis(t)

	mr.Set(storageKey("dev-1", "cart-u*"), cartJSON)
	mr.Set(storageKey("dev-1", "cart-u1"), cartJSON)

	n, err := cache.DeleteEverywhere(context.Background(), "cart-u*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists(storageKey("dev-1", "cart-u1")))
}

func TestDeleteEverywhere_OnlyExactKey(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	mr.Set(storageKey("dev-1", "cart-u1"), cartJSON)
	// user "x:cart-u1" on dev-2; the SCAN glob matches it too
	mr.Set(storageKey("dev-2", "cart-x:cart-u1"), cartJSON)

	n, err := cache.DeleteEverywhere(ctx, "cart-u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, mr.Exists(storageKey("dev-1", "cart-u1")))
	data, err := cache.ForDevice("dev-2").Get(ctx, "cart-x:cart-u1")
	require.NoError(t, err)
	assert.Equal(t, cartJSON, string(data))
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID("dev-1"))
	assert.True(t, ValidID("3f1c2b9e-8f0a-4c2d-9b1e-2a7d5c6e8f90"))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID("a:b"))
	assert.False(t, ValidID("dev-*"))
	assert.False(t, ValidID("dev[1]"))
}
