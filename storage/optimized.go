package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/manifest"
)

const (
	vectorFileName = "vectors.bin"
	kvDirName      = "kv"
)

// OptimizedBackend is the high-throughput Backend: vectors live in a
// fixed-stride memory-mapped file, while metadata, graph adjacency, and the
// manifest live in an embedded badger KV store. It is the backend CreateIndex
// chooses unless the caller asks for the legacy single-document format.
type OptimizedBackend struct {
	dir  string
	lock *DirLock
	vec  *VectorFile
	kv   *kvStore
}

// OpenOptimized opens (creating if necessary) an optimized backend rooted at
// dir, for vectors of the given dimension.
func OpenOptimized(dir string, dim int) (*OptimizedBackend, error) {
	lock, err := AcquireLock(dir)
	if err != nil {
		return nil, err
	}

	vec, err := OpenVectorFile(filepath.Join(dir, vectorFileName), dim)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("storage: opening vector file: %w", err)
	}

	kv, err := openKVStore(filepath.Join(dir, kvDirName))
	if err != nil {
		vec.Close()
		lock.Release()
		return nil, fmt.Errorf("storage: opening kv store: %w", err)
	}

	return &OptimizedBackend{dir: dir, lock: lock, vec: vec, kv: kv}, nil
}

func metaKey(id core.LocalID) string  { return fmt.Sprintf("%s%d", prefixMeta, id) }
func graphKey(id core.LocalID) string { return fmt.Sprintf("%s%d", prefixGraph, id) }

func (b *OptimizedBackend) PutVector(ctx context.Context, id core.LocalID, vector []float32) error {
	return b.vec.PutVector(id, vector)
}

func (b *OptimizedBackend) GetVector(ctx context.Context, id core.LocalID) ([]float32, error) {
	return b.vec.GetVector(id)
}

func (b *OptimizedBackend) PutMetadata(ctx context.Context, id core.LocalID, data []byte) error {
	return b.kv.set(metaKey(id), data)
}

func (b *OptimizedBackend) GetMetadata(ctx context.Context, id core.LocalID) ([]byte, error) {
	return b.kv.get(metaKey(id))
}

func (b *OptimizedBackend) DeleteMetadata(ctx context.Context, id core.LocalID) error {
	return b.kv.delete(metaKey(id))
}

func (b *OptimizedBackend) PutGraphNode(ctx context.Context, id core.LocalID, data []byte) error {
	return b.kv.set(graphKey(id), data)
}

func (b *OptimizedBackend) GetGraphNode(ctx context.Context, id core.LocalID) ([]byte, error) {
	return b.kv.get(graphKey(id))
}

func (b *OptimizedBackend) DeleteGraphNode(ctx context.Context, id core.LocalID) error {
	return b.kv.delete(graphKey(id))
}

func (b *OptimizedBackend) PutManifest(ctx context.Context, m *manifest.Manifest) error {
	data, err := marshalManifest(m)
	if err != nil {
		return err
	}
	return b.kv.set(prefixManifest, data)
}

func (b *OptimizedBackend) GetManifest(ctx context.Context) (*manifest.Manifest, error) {
	data, err := b.kv.get(prefixManifest)
	if err != nil {
		if err == ErrNotFound {
			return &manifest.Manifest{Version: manifest.CurrentVersion}, nil
		}
		return nil, err
	}
	return unmarshalManifest(data)
}

// Flush msyncs the vector mmap's dirty pages and calls badger's Sync on the
// KV store; both block until the data has reached stable storage.
func (b *OptimizedBackend) Flush(ctx context.Context) error {
	if err := b.vec.Sync(); err != nil {
		return err
	}
	return b.kv.flush()
}

// Fsync is identical to Flush here: msync(MS_SYNC) and badger's Sync both
// block until data has reached stable storage, so there is no separate
// durability tier to drive.
func (b *OptimizedBackend) Fsync(ctx context.Context) error {
	return b.Flush(ctx)
}

func (b *OptimizedBackend) Close() error {
	var firstErr error
	if err := b.vec.Close(); err != nil {
		firstErr = err
	}
	if err := b.kv.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.lock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
