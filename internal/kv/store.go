// Package kv defines the key-value store abstraction backing the
// metadata cache, invite codes, user secrets, and audit log.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("kv: not found")

// Store is the interface for key-value operations.
//
// A ttl of zero means the entry never expires. Expired entries behave as
// absent; backends may reclaim them lazily.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, overwriting any previous entry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
