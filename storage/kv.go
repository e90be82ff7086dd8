package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes partition the single badger keyspace into the logical
// regions the optimized backend needs: per-item metadata, per-node graph
// adjacency, and the singleton manifest record.
const (
	prefixMeta     = "meta/"
	prefixGraph    = "graph/"
	prefixManifest = "manifest/current"
)

// kvStore wraps a badger.DB with the small get/set/delete surface the
// optimized backend needs. badger supplies its own WAL, compaction, and
// crash recovery, so this wrapper stays thin: it only translates badger's
// not-found error into ErrNotFound; callers build the prefixed keys.
type kvStore struct {
	db *badger.DB
}

func openKVStore(dir string) (*kvStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(false) // fsync is driven by the txn layer's commit protocol, not per-write.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: opening kv store: %w", err)
	}
	return &kvStore{db: db}, nil
}

func (k *kvStore) get(key string) ([]byte, error) {
	var out []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (k *kvStore) set(key string, value []byte) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (k *kvStore) delete(key string) error {
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (k *kvStore) flush() error {
	return k.db.Sync()
}

func (k *kvStore) close() error {
	return k.db.Close()
}
