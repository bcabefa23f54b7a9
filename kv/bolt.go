package kv

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// forEachChunk bounds how many entries are copied out of one read transaction.
const forEachChunk = 1024

// BoltOptions configures the bbolt backend.
type BoltOptions struct {
	// SyncWrites fsyncs every commit. Disable for faster bulk loads.
	SyncWrites bool
	// Timeout waits for the file lock held by another process.
	Timeout time.Duration
	// ReadOnly opens the file without write access.
	ReadOnly bool
}

// DefaultBoltOptions returns durable defaults.
func DefaultBoltOptions() BoltOptions {
	return BoltOptions{SyncWrites: true, Timeout: time.Second}
}

// BoltBackend stores each namespace in its own bucket.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) a bbolt file at path.
func OpenBolt(path string, opts BoltOptions) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kv: create directory for %q: %w", path, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:  opts.Timeout,
		NoSync:   !opts.SyncWrites,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt %q: %w", path, err)
	}
	return &BoltBackend{db: db}, nil
}

// Get copies the value out of the read transaction.
func (b *BoltBackend) Get(ns string, key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil {
			return nil
		}
		v := bucket.Get(key)
		if v == nil {
			return nil
		}
		found = true
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("kv: bolt get %s: %w", ns, err)
	}
	return out, found, nil
}

// ForEach pages through the bucket in key order. fn runs outside of any
// transaction, so it may read from the backend again.
func (b *BoltBackend) ForEach(ns string, fn func(key, val []byte) error) error {
	var after []byte
	for {
		keys := make([][]byte, 0, forEachChunk)
		vals := make([][]byte, 0, forEachChunk)

		err := b.db.View(func(tx *bolt.Tx) error {
			bucket := tx.Bucket([]byte(ns))
			if bucket == nil {
				return nil
			}
			c := bucket.Cursor()
			var k, v []byte
			if after == nil {
				k, v = c.First()
			} else {
				k, v = c.Seek(after)
				if k != nil && bytes.Equal(k, after) {
					k, v = c.Next()
				}
			}
			for ; k != nil && len(keys) < forEachChunk; k, v = c.Next() {
				keys = append(keys, bytes.Clone(k))
				vals = append(vals, bytes.Clone(v))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("kv: bolt scan %s: %w", ns, err)
		}

		for i := range keys {
			if err := fn(keys[i], vals[i]); err != nil {
				return err
			}
		}
		if len(keys) < forEachChunk {
			return nil
		}
		after = keys[len(keys)-1]
	}
}

// Apply writes the whole batch in a single transaction.
func (b *BoltBackend) Apply(writes []Write) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		buckets := make(map[string]*bolt.Bucket)
		for _, w := range writes {
			bucket, ok := buckets[w.Namespace]
			if !ok {
				var err error
				bucket, err = tx.CreateBucketIfNotExists([]byte(w.Namespace))
				if err != nil {
					return fmt.Errorf("create bucket %s: %w", w.Namespace, err)
				}
				buckets[w.Namespace] = bucket
			}
			if w.Value == nil {
				if err := bucket.Delete(w.Key); err != nil {
					return fmt.Errorf("delete in %s: %w", w.Namespace, err)
				}
				continue
			}
			if err := bucket.Put(w.Key, w.Value); err != nil {
				return fmt.Errorf("put in %s: %w", w.Namespace, err)
			}
		}
		return nil
	})
}

// Close releases the file lock and the mmap.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
