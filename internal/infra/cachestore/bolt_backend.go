package cachestore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const cacheBucket = "cache"

// BoltBackend is the fast backend: a single BoltDB file with a per-value size ceiling.
type BoltBackend struct {
	db            *bbolt.DB
	maxValueBytes int
}

// OpenBolt opens a BoltDB-backed fast backend at the provided path.
// maxValueBytes <= 0 disables the ceiling.
func OpenBolt(path string, maxValueBytes int) (*BoltBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	b := &BoltBackend{db: db, maxValueBytes: maxValueBytes}
	if err := b.ensureBucket(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the underlying BoltDB database.
func (b *BoltBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *BoltBackend) Name() string { return "bolt" }

func (b *BoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return fmt.Errorf("cache bucket is missing")
		}
		stored := bucket.Get([]byte(key))
		if stored == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid inside the transaction
		value = append([]byte(nil), stored...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BoltBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cache key is required")
	}
	if b.maxValueBytes > 0 && len(value) > b.maxValueBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(value), b.maxValueBytes)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return fmt.Errorf("cache bucket is missing")
		}
		return bucket.Put([]byte(key), value)
	})
}

func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	return b.DeleteMany(ctx, []string{key})
}

// DeleteMany removes keys in a single transaction.
func (b *BoltBackend) DeleteMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return fmt.Errorf("cache bucket is missing")
		}
		for _, key := range keys {
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

func (b *BoltBackend) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(cacheBucket))
		if bucket == nil {
			return fmt.Errorf("cache bucket is missing")
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (b *BoltBackend) ensureBucket() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cacheBucket)); err != nil {
			return fmt.Errorf("create cache bucket: %w", err)
		}
		return nil
	})
}
