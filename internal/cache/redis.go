package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scanBatch = 100
	keyPrefix = "device:"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 30 * 24 * time.Hour,
	}
}

// RedisCache holds the local storage of every device, each under its own
// key prefix.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// ForDevice returns the local storage of one device.
func (r *RedisCache) ForDevice(deviceID string) LocalStorage {
	return deviceStorage{cache: r, deviceID: deviceID}
}

// DeleteEverywhere removes key from every device and reports how many
// entries were deleted.
func (r *RedisCache) DeleteEverywhere(ctx context.Context, key string) (int, error) {
	pattern := storageKey("*", escapePattern(key))
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan failed: %w", err)
		}
		keys = exactMatches(keys, key)
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis delete failed: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) get(ctx context.Context, redisKey string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisCache) set(ctx context.Context, redisKey string, value []byte) error {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, redisKey, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) del(ctx context.Context, redisKey string) error {
	if err := r.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

type deviceStorage struct {
	cache    *RedisCache
	deviceID string
}

func (d deviceStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return d.cache.get(ctx, storageKey(d.deviceID, key))
}

func (d deviceStorage) Set(ctx context.Context, key string, value []byte) error {
	return d.cache.set(ctx, storageKey(d.deviceID, key), value)
}

func (d deviceStorage) Delete(ctx context.Context, key string) error {
	return d.cache.del(ctx, storageKey(d.deviceID, key))
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapePattern quotes glob metacharacters for SCAN MATCH.
func escapePattern(s string) string {
	return globReplacer.Replace(s)
}

func storageKey(deviceID, key string) string {
	return keyPrefix + deviceID + ":" + key
}

// exactMatches keeps the redis keys that hold key itself. The glob in SCAN
// MATCH also spans ':', so device:d:cart-x:cart-u1 matches device:*:cart-u1.
func exactMatches(redisKeys []string, key string) []string {
	out := redisKeys[:0]
	for _, k := range redisKeys {
		deviceID := strings.TrimSuffix(strings.TrimPrefix(k, keyPrefix), ":"+key)
		if deviceID != "" && !strings.Contains(deviceID, ":") {
			out = append(out, k)
		}
	}
	return out
}

// ValidID reports whether id can name a device or a user in a storage key.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, ":*?[]\\")
}
