// Package kv defines the shared key/value medium every execution context
// reads and writes: the ticket list, the day marker, catalog entries,
// transient bus entries and announcement locks all live here.
package kv

import (
	"context"
	"time"
)

// Store is a string key/value medium with optional per-entry expiry.
// A ttl of zero means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key has no live entry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndSwap replaces the live entry only if it still holds old.
	CompareAndSwap(ctx context.Context, key, old, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete removes the live entry only if it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, key string) error
	// Keys lists live keys starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
