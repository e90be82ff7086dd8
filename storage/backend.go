// Package storage implements the durable side of an index: vectors,
// metadata, manifest, and HNSW graph nodes, behind a single Backend
// interface with two concrete implementations (legacy and optimized).
package storage

import (
	"context"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/manifest"
)

// Backend is the storage contract every index engine is built on. All
// methods except Flush/Fsync/Close are synchronous and return once the
// mutation is visible to subsequent Get calls on the same backend; none of
// them imply a commit boundary by themselves, that is the txn package's job.
type Backend interface {
	// PutVector writes the raw vector for id. The caller is responsible for
	// dimension validation before calling.
	PutVector(ctx context.Context, id core.LocalID, vector []float32) error
	// GetVector reads the raw vector for id.
	GetVector(ctx context.Context, id core.LocalID) ([]float32, error)

	// PutMetadata stores the serialized metadata document for id.
	PutMetadata(ctx context.Context, id core.LocalID, data []byte) error
	// GetMetadata reads the serialized metadata document for id.
	GetMetadata(ctx context.Context, id core.LocalID) ([]byte, error)
	// DeleteMetadata removes the metadata document for id.
	DeleteMetadata(ctx context.Context, id core.LocalID) error

	// PutManifest persists m as the current manifest.
	PutManifest(ctx context.Context, m *manifest.Manifest) error
	// GetManifest reads the current manifest.
	GetManifest(ctx context.Context) (*manifest.Manifest, error)

	// PutGraphNode stores the encoded HNSW adjacency record for id.
	PutGraphNode(ctx context.Context, id core.LocalID, data []byte) error
	// GetGraphNode reads the encoded HNSW adjacency record for id.
	GetGraphNode(ctx context.Context, id core.LocalID) ([]byte, error)
	// DeleteGraphNode removes the adjacency record for id.
	DeleteGraphNode(ctx context.Context, id core.LocalID) error

	// Flush pushes buffered writes to the OS; it does not guarantee they
	// have reached stable storage.
	Flush(ctx context.Context) error
	// Fsync guarantees that all writes up to this point have reached
	// stable storage.
	Fsync(ctx context.Context) error
	// Close releases all resources (file descriptors, mmaps, locks) held
	// by the backend.
	Close() error
}
