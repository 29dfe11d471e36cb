package cache

import (
	"context"
	"errors"
)

// LocalStorage is a per-device key/value store that outlives a session.
// It stands in for the browser's local storage.
type LocalStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
