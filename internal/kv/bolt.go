package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("kv")

// envelope wraps a value with its optional expiry for bolt storage.
type envelope struct {
	Value     []byte `json:"value"`
	ExpiresAt int64  `json:"expiresAt,omitempty"` // unix seconds, 0 = never
}

// Bolt implements Store backed by a bbolt database file.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

// OpenBolt opens the database at path and creates the bucket.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("kv: create bucket: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

// Get returns the value for key, treating expired entries as absent.
func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	var expired bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("kv: decode envelope for %s: %w", key, err)
		}
		if env.ExpiresAt > 0 && b.now().Unix() >= env.ExpiresAt {
			expired = true
			return ErrNotFound
		}
		value = env.Value
		return nil
	})
	if expired {
		// Reclaim outside the read transaction.
		_ = b.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(boltBucket).Delete([]byte(key))
		})
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores value under key, overwriting any previous entry.
func (b *Bolt) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{Value: value}
	if ttl > 0 {
		env.ExpiresAt = b.now().Add(ttl).Unix()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kv: encode envelope for %s: %w", key, err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("kv: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (b *Bolt) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("kv: delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}
