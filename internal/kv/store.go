// Package kv provides the string-keyed value store that owns all faucet state.
//
// Every implementation satisfies the same contract: a missing (or expired) key
// reads as sentinel.ErrNotFound, a zero TTL means "no expiry", and the
// conditional writes are atomic with respect to other callers of the same
// backend. Values are opaque bytes; callers encode their own records.
package kv

import (
	"context"
	"time"
)

// Store is the persistence contract shared by the Redis, PostgreSQL and
// in-memory backends and by the degrading wrapper.
type Store interface {
	// Get returns the value for key or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value unconditionally. A zero ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent writes value only when key has no live value.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndSwap replaces the value of key with next only when the current
	// value equals prev. A nil prev requires the key to be absent.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)

	// CompareAndDelete removes key only when its current value equals prev.
	CompareAndDelete(ctx context.Context, key string, prev []byte) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
