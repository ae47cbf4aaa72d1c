// Package cachestore persists cache values across two storage backends.
//
// Values go to a size-limited fast backend when they fit and to a plain file per key
// otherwise. Every key carries created/updated markers stored next to it:
//
//	<key>            value blob
//	<key>_created    set on first write, never changed
//	<key>_updated    set on every write
//	<key>_timestamp  legacy marker (unix millis), still written and read as a fallback
//
// Binary payloads are kept as raw files under the file backend's blob directory.
package cachestore

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("cache key not found")
	ErrTooLarge = errors.New("value exceeds backend size limit")
)

// Backend is one storage location for cache values.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error) // ErrNotFound when absent
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error // deleting a missing key is not an error
	Keys(ctx context.Context) ([]string, error)
}

// BatchDeleter is implemented by backends that can drop many keys in one round trip.
type BatchDeleter interface {
	DeleteMany(ctx context.Context, keys []string) error
}
