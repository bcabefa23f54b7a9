package kv

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures the badger backend.
type BadgerOptions struct {
	// SyncWrites fsyncs the value log on every write batch.
	SyncWrites bool
	// InMemory keeps everything in RAM. Dir is ignored.
	InMemory bool
	// Logger receives badger's internal log output. nil silences it.
	Logger badger.Logger
}

// BadgerBackend stores every namespace in one LSM tree, prefixing keys with
// "<namespace>\x00".
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger directory.
func OpenBadger(dir string, opts BadgerOptions) (*BadgerBackend, error) {
	bo := badger.DefaultOptions(dir).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger)
	if opts.InMemory {
		bo = bo.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger %q: %w", dir, err)
	}
	return &BadgerBackend{db: db}, nil
}

func badgerKey(ns string, key []byte) []byte {
	k := make([]byte, 0, len(ns)+1+len(key))
	k = append(k, ns...)
	k = append(k, 0)
	return append(k, key...)
}

// Get returns a copy of the stored value.
func (b *BadgerBackend) Get(ns string, key []byte) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(ns, key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: badger get %s: %w", ns, err)
	}
	return out, true, nil
}

// ForEach pages through the namespace prefix; fn runs outside the transaction.
func (b *BadgerBackend) ForEach(ns string, fn func(key, val []byte) error) error {
	prefix := badgerKey(ns, nil)
	seek := prefix
	skipFirst := false

	for {
		keys := make([][]byte, 0, forEachChunk)
		vals := make([][]byte, 0, forEachChunk)

		err := b.db.View(func(txn *badger.Txn) error {
			itOpts := badger.DefaultIteratorOptions
			itOpts.Prefix = prefix
			it := txn.NewIterator(itOpts)
			defer it.Close()

			for it.Seek(seek); it.ValidForPrefix(prefix) && len(keys) < forEachChunk; it.Next() {
				item := it.Item()
				if skipFirst && bytes.Equal(item.Key(), seek) {
					continue
				}
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				keys = append(keys, item.KeyCopy(nil))
				vals = append(vals, v)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("kv: badger scan %s: %w", ns, err)
		}

		for i := range keys {
			if err := fn(keys[i][len(prefix):], vals[i]); err != nil {
				return err
			}
		}
		if len(keys) < forEachChunk {
			return nil
		}
		seek = keys[len(keys)-1]
		skipFirst = true
	}
}

// Apply writes the batch through a WriteBatch. Badger splits oversized batches
// into several transactions, so only each individual key is atomic.
func (b *BadgerBackend) Apply(writes []Write) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, w := range writes {
		k := badgerKey(w.Namespace, w.Key)
		if w.Value == nil {
			if err := wb.Delete(k); err != nil {
				return fmt.Errorf("kv: badger delete in %s: %w", w.Namespace, err)
			}
			continue
		}
		if err := wb.Set(k, w.Value); err != nil {
			return fmt.Errorf("kv: badger set in %s: %w", w.Namespace, err)
		}
	}
	return wb.Flush()
}

// Close flushes memtables and releases the directory lock.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
