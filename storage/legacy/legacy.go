// Package legacy implements the single-document storage backend: every
// vector, metadata document, graph-adjacency record, and the manifest itself
// live in one gzip-compressed JSON file, rewritten atomically on every
// mutation. It trades write amplification (the whole index is rewritten
// per commit) for simplicity and trivial backup/inspection, and exists
// mainly for small indexes and for reading indexes produced by older,
// pre-optimized-backend builds.
package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/internal/fs"
	"github.com/vectrix-db/vectrix/manifest"
	"github.com/vectrix-db/vectrix/storage"
)

const (
	// IndexFileName is the single file a legacy index is stored in.
	IndexFileName = "index.json.gz"
	// FormatVersion identifies the document's schema, independent of the
	// manifest's own version field.
	FormatVersion = 1
)

// document is the exact shape persisted to disk: one self-contained JSON
// object holding every record the backend needs.
type document struct {
	Version  int               `json:"version"`
	Manifest *manifest.Manifest `json:"manifest"`
	Vectors  map[string][]float32 `json:"vectors"`
	Metadata map[string]json.RawMessage `json:"metadata"`
	Graph    map[string]json.RawMessage `json:"graph"`
}

func newDocument() *document {
	return &document{
		Version:  FormatVersion,
		Manifest: &manifest.Manifest{Version: manifest.CurrentVersion},
		Vectors:  make(map[string][]float32),
		Metadata: make(map[string]json.RawMessage),
		Graph:    make(map[string]json.RawMessage),
	}
}

// Backend implements storage.Backend by holding the entire index in memory,
// guarded by a single mutex, and rewriting the backing file on every write.
// This matches the legacy single-document format's original save-whole-index-
// per-mutation behavior exactly.
type Backend struct {
	mu   sync.Mutex
	fs   fs.FileSystem
	path string
	doc  *document
}

// Open loads (or creates, if absent) the legacy index file at dir/index.json.gz.
func Open(dir string) (*Backend, error) {
	return OpenFS(fs.Default, dir)
}

// OpenFS is Open with an injectable fs.FileSystem, used by crash-consistency
// tests built on internal/fs's fault-injection wrapper.
func OpenFS(fsys fs.FileSystem, dir string) (*Backend, error) {
	path := filepath.Join(dir, IndexFileName)

	doc, err := loadDocument(fsys, path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		doc = newDocument()
	}

	return &Backend{fs: fsys, path: path, doc: doc}, nil
}

func loadDocument(fsys fs.FileSystem, path string) (*document, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("legacy: reading compressed index: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("legacy: decoding index: %w", err)
	}
	if doc.Vectors == nil {
		doc.Vectors = make(map[string][]float32)
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]json.RawMessage)
	}
	if doc.Graph == nil {
		doc.Graph = make(map[string]json.RawMessage)
	}
	return &doc, nil
}

// save rewrites the entire index file atomically: write to a temp file,
// fsync, rename over the original, then fsync the parent directory.
func (b *Backend) save() error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(b.doc); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	tmpPath := b.path + ".tmp"
	f, err := b.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		b.fs.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		b.fs.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		b.fs.Remove(tmpPath)
		return err
	}

	if err := b.fs.Rename(tmpPath, b.path); err != nil {
		b.fs.Remove(tmpPath)
		return err
	}

	dir, err := b.fs.OpenFile(filepath.Dir(b.path), os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

func key(id core.LocalID) string { return fmt.Sprintf("%d", id) }

func (b *Backend) PutVector(ctx context.Context, id core.LocalID, vector []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.Vectors[key(id)] = append([]float32(nil), vector...)
	return b.save()
}

func (b *Backend) GetVector(ctx context.Context, id core.LocalID) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.doc.Vectors[key(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]float32(nil), v...), nil
}

func (b *Backend) PutMetadata(ctx context.Context, id core.LocalID, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.Metadata[key(id)] = append(json.RawMessage(nil), data...)
	return b.save()
}

func (b *Backend) GetMetadata(ctx context.Context, id core.LocalID) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.doc.Metadata[key(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *Backend) DeleteMetadata(ctx context.Context, id core.LocalID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.doc.Metadata, key(id))
	return b.save()
}

func (b *Backend) PutGraphNode(ctx context.Context, id core.LocalID, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.Graph[key(id)] = append(json.RawMessage(nil), data...)
	return b.save()
}

func (b *Backend) GetGraphNode(ctx context.Context, id core.LocalID) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.doc.Graph[key(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *Backend) DeleteGraphNode(ctx context.Context, id core.LocalID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.doc.Graph, key(id))
	return b.save()
}

func (b *Backend) PutManifest(ctx context.Context, m *manifest.Manifest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc.Manifest = m
	return b.save()
}

func (b *Backend) GetManifest(ctx context.Context) (*manifest.Manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := *b.doc.Manifest
	return &m, nil
}

// Flush and Fsync are both no-ops beyond what save already does: every
// mutating call above already fsyncs the rewritten file before returning.
func (b *Backend) Flush(ctx context.Context) error { return nil }
func (b *Backend) Fsync(ctx context.Context) error { return nil }

func (b *Backend) Close() error { return nil }

var _ storage.Backend = (*Backend)(nil)
