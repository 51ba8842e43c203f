package kv

import (
	"context"
	"time"
)

// Store is a minimal key-value surface over the shared cache. The lock
// manager and pause gate depend on it so tests can swap in the in-memory
// implementation.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes the value with a TTL; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes the value only if the key is absent. Atomic.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes the key only if it still holds expected. Atomic.
	CompareAndDelete(ctx context.Context, key, expected string) error
	Delete(ctx context.Context, key string) error
}
