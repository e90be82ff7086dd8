// Package vectrix implements an embedded, single-process approximate
// nearest-neighbor vector database: an HNSW graph over a pluggable storage
// backend, with atomic transactional updates and a metadata-filter-fused
// query engine.
package vectrix

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/hnsw"
	"github.com/vectrix-db/vectrix/manifest"
	"github.com/vectrix-db/vectrix/metadata"
	"github.com/vectrix-db/vectrix/metric"
	"github.com/vectrix-db/vectrix/storage"
	"github.com/vectrix-db/vectrix/storage/legacy"
	"github.com/vectrix-db/vectrix/txn"
	"github.com/vectrix-db/vectrix/wal"
)

// Index is a single embedded vector index rooted at one directory. All
// exported methods are safe for concurrent use. idx.mu only guards the
// closed flag and the BeginUpdate/EndUpdate/CancelUpdate bookkeeping;
// InsertItem, UpdateItem, DeleteItem, and any transaction in between only
// take a shared lock, so they never block GetItem, ListItems, or
// QueryItems. Mutators are instead serialized against each other by
// txn.Coordinator's own single-writer lock, which every transaction goes
// through regardless of which method started it.
type Index struct {
	mu     sync.RWMutex
	closed bool

	dim          int
	metricKind   metric.Metric
	scoreMapping metric.ScoreMapping
	efSearch     int

	backend storage.Backend
	graph   *hnsw.HNSW
	meta    *metadata.FieldIndex
	coord   *txn.Coordinator
	log     *wal.WAL

	activeTxn *txn.Transaction

	logger    *Logger
	metrics   MetricsCollector
	lastAlpha int
}

func distanceFuncFor(m metric.Metric) hnsw.DistanceFunc {
	return func(a, b []float32) (float32, error) {
		return metric.Distance(m, a, b)
	}
}

// CreateIndex creates a new index rooted at dir for vectors of the given
// dimension. dir must not already contain an index.
func CreateIndex(dir string, dim int, optFns ...Option) (*Index, error) {
	o := applyOptions(optFns)

	backend, err := openBackend(dir, dim, o.backend)
	if err != nil {
		return nil, err
	}

	graphOpts := []func(*hnsw.Options){
		func(ho *hnsw.Options) {
			ho.M = o.m
			ho.EFConstruction = o.efConstruction
			ho.EFSearch = o.efSearch
			ho.DistanceFunc = distanceFuncFor(o.metric)
		},
	}
	graph := hnsw.New(dim, graphOpts...)

	metaConfig := metadata.Config{Dynamic: true}
	if o.metadataConfig != nil {
		metaConfig = metadata.Config{
			Indexed:      o.metadataConfig.Indexed,
			MaxSizeBytes: o.metadataConfig.MaxSizeBytes,
			Dynamic:      o.metadataConfig.Dynamic,
		}
	}
	metaIndex := metadata.NewFieldIndex(metaConfig)

	log, err := openWAL(o.walPath)
	if err != nil {
		backend.Close()
		return nil, err
	}

	m := &manifest.Manifest{
		Dim:            dim,
		Metric:         o.metric.String(),
		ScoreMapping:   metric.DefaultScoreMapping(o.metric).String(),
		M:              o.m,
		MMax0:          2 * o.m,
		EFConstruction: o.efConstruction,
		EFSearch:       o.efSearch,
	}
	if err := backend.PutManifest(context.Background(), m); err != nil {
		backend.Close()
		return nil, err
	}

	idx := &Index{
		dim:          dim,
		metricKind:   o.metric,
		scoreMapping: metric.DefaultScoreMapping(o.metric),
		efSearch:     o.efSearch,
		backend:      backend,
		graph:        graph,
		meta:         metaIndex,
		log:          log,
		logger:       o.logger,
		metrics:      o.metricsCollector,
	}
	idx.coord = txn.NewCoordinator(backend, graph, metaIndex, log)

	return idx, nil
}

// Open reopens an existing index rooted at dir, replaying its manifest and
// every graph node from the backend.
func Open(dir string, optFns ...Option) (*Index, error) {
	o := applyOptions(optFns)

	backend, err := openBackend(dir, 0, o.backend)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	m, err := backend.GetManifest(ctx)
	if err != nil {
		backend.Close()
		return nil, err
	}

	metricKind, err := metric.ParseMetric(m.Metric)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("vectrix: opening index: %w", err)
	}
	scoreMapping, err := metric.ParseScoreMapping(m.ScoreMapping)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("vectrix: opening index: %w", err)
	}

	graph := hnsw.New(m.Dim, func(ho *hnsw.Options) {
		ho.M = m.M
		ho.EFConstruction = m.EFConstruction
		ho.EFSearch = m.EFSearch
		ho.DistanceFunc = distanceFuncFor(metricKind)
	})

	metaIndex := metadata.NewFieldIndex(metadata.Config{Dynamic: true})

	log, err := openWAL(o.walPath)
	if err != nil {
		backend.Close()
		return nil, err
	}

	coord := txn.NewCoordinator(backend, graph, metaIndex, log)

	if err := restoreGraph(ctx, backend, graph, metaIndex, coord, m); err != nil {
		backend.Close()
		return nil, fmt.Errorf("vectrix: opening index: %w", err)
	}

	idx := &Index{
		dim:          m.Dim,
		metricKind:   metricKind,
		scoreMapping: scoreMapping,
		efSearch:     m.EFSearch,
		backend:      backend,
		graph:        graph,
		meta:         metaIndex,
		log:          log,
		logger:       o.logger,
		metrics:      o.metricsCollector,
	}
	idx.coord = coord

	return idx, nil
}

// restoreGraph rebuilds an in-memory HNSW graph, metadata field index, and
// uuid-to-node-id mapping from what a backend has durably stored. Node ids
// are dense and append-only (assigned by graph.Insert starting at 1), and
// m.ItemCount is the running total ever inserted, so every id in
// [1, m.ItemCount] has a vector and graph-node record on disk; an id whose
// metadata is missing was deleted (DeleteItem removes metadata immediately
// but leaves the graph node and vector in place until Compact), and is
// restored as tombstoned. A tombstoned id's item id cannot be recovered from
// the backend (its record was deleted), so it is left unmapped; an item that
// is live again under the same caller-facing id after a delete+reinsert is
// restored under its most recent record, the one still on disk.
func restoreGraph(ctx context.Context, backend storage.Backend, graph *hnsw.HNSW, metaIndex *metadata.FieldIndex, coord *txn.Coordinator, m *manifest.Manifest) error {
	for id := core.LocalID(1); uint64(id) <= m.ItemCount; id++ {
		vector, err := backend.GetVector(ctx, id)
		if err != nil {
			return fmt.Errorf("loading vector %d: %w", id, err)
		}
		data, err := backend.GetGraphNode(ctx, id)
		if err != nil {
			return fmt.Errorf("loading graph node %d: %w", id, err)
		}
		node, err := hnsw.DecodeNode(uint32(id), data)
		if err != nil {
			return fmt.Errorf("decoding graph node %d: %w", id, err)
		}
		node.Vector = vector

		metaData, err := backend.GetMetadata(ctx, id)
		if err == storage.ErrNotFound {
			node.Tombstoned = true
		} else if err != nil {
			return fmt.Errorf("loading metadata %d: %w", id, err)
		} else {
			var rec txn.Record
			if err := json.Unmarshal(metaData, &rec); err != nil {
				return fmt.Errorf("decoding metadata %d: %w", id, err)
			}
			metaIndex.Add(id, rec.Document)
			coord.RestoreMapping(rec.ItemID, id)
		}

		graph.RestoreNode(node)
	}

	graph.SetEntryState(m.EntryPoint, m.MaxLevel)
	return nil
}

func openBackend(dir string, dim int, kind BackendKind) (storage.Backend, error) {
	switch kind {
	case BackendLegacy:
		return legacy.Open(dir)
	default:
		return storage.OpenOptimized(dir, dim)
	}
}

func openWAL(path string) (*wal.WAL, error) {
	if path == "" {
		return nil, nil
	}
	return wal.New(func(o *wal.Options) { o.Path = path })
}

// InsertItem adds a new vector and its metadata document under itemID, or
// under a freshly generated id if itemID is uuid.Nil, returning the
// resulting Item. Equivalent to BeginUpdate, one InsertItem call, EndUpdate.
// Returns ErrAlreadyExists if itemID already backs a live item, and
// ErrMetadataTooLarge if doc's encoded size exceeds the configured limit.
func (idx *Index) InsertItem(ctx context.Context, itemID uuid.UUID, vector []float32, doc metadata.Document) (Item, error) {
	// A shared lock is enough here: txn.Coordinator's own single-writer lock
	// already serializes this against every other mutator, so holding idx.mu
	// exclusively for the whole commit would only block concurrent readers
	// for no benefit.
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return Item{}, ErrClosed
	}
	if len(vector) != idx.dim {
		return Item{}, &ErrDimensionMismatch{Expected: idx.dim, Actual: len(vector)}
	}

	start := idx.now()
	tx, err := idx.coord.Begin(ctx)
	if err != nil {
		return Item{}, err
	}

	now := idx.now()
	resolvedID, _, err := tx.InsertItem(itemID, vector, doc, now)
	if err != nil {
		tx.Rollback(ctx)
		idx.logger.LogInsert(ctx, resolvedID, idx.dim, err)
		idx.metrics.RecordInsert(idx.since(start), err)
		return Item{}, translateError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		idx.logger.LogInsert(ctx, resolvedID, idx.dim, err)
		idx.metrics.RecordInsert(idx.since(start), err)
		return Item{}, translateError(err)
	}

	idx.logger.LogInsert(ctx, resolvedID, idx.dim, nil)
	idx.metrics.RecordInsert(idx.since(start), nil)
	return Item{ID: resolvedID, Vector: vector, Metadata: doc, Version: 1, CreatedAt: now, UpdatedAt: now}, nil
}

// GetItem retrieves the item with the given id, or ErrNotFound if it does
// not exist or has been deleted.
func (idx *Index) GetItem(ctx context.Context, itemID uuid.UUID) (Item, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return Item{}, ErrClosed
	}

	id, ok := idx.coord.Lookup(itemID)
	if !ok || idx.graph.IsTombstoned(uint32(id)) {
		return Item{}, ErrNotFound
	}

	node := idx.graph.NodeAt(uint32(id))
	if node == nil {
		return Item{}, ErrNotFound
	}

	data, err := idx.backend.GetMetadata(ctx, id)
	if err != nil {
		return Item{}, translateError(err)
	}
	var rec txn.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Item{}, err
	}

	return Item{ID: itemID, Vector: node.Vector, Metadata: rec.Document, Version: rec.Version, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}, nil
}

// UpdateItem replaces the metadata document, and optionally the vector, for
// an existing item. A nil vector leaves the stored vector unchanged.
// Returns ErrMetadataTooLarge if doc's encoded size exceeds the configured
// limit, and ErrDimensionMismatch if vector is non-nil and the wrong
// dimension.
func (idx *Index) UpdateItem(ctx context.Context, itemID uuid.UUID, vector []float32, doc metadata.Document) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return ErrClosed
	}
	if vector != nil && len(vector) != idx.dim {
		return &ErrDimensionMismatch{Expected: idx.dim, Actual: len(vector)}
	}

	start := idx.now()
	tx, err := idx.coord.Begin(ctx)
	if err != nil {
		return err
	}

	if err := tx.UpdateItem(itemID, vector, doc, idx.now()); err != nil {
		tx.Rollback(ctx)
		idx.logger.LogUpdate(ctx, itemID, err)
		idx.metrics.RecordUpdate(idx.since(start), err)
		return translateError(err)
	}

	err = tx.Commit(ctx)
	idx.logger.LogUpdate(ctx, itemID, err)
	idx.metrics.RecordUpdate(idx.since(start), err)
	return translateError(err)
}

// DeleteItem tombstones an item: it is excluded from GetItem, ListItems,
// and QueryItems immediately. Its vector and graph-node record stay in the
// backend; Index has no operation that reclaims them.
func (idx *Index) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return ErrClosed
	}

	start := idx.now()
	tx, err := idx.coord.Begin(ctx)
	if err != nil {
		return err
	}

	if err := tx.DeleteItem(itemID); err != nil {
		tx.Rollback(ctx)
		idx.logger.LogDelete(ctx, itemID, err)
		idx.metrics.RecordDelete(idx.since(start), err)
		return translateError(err)
	}

	err = tx.Commit(ctx)
	idx.logger.LogDelete(ctx, itemID, err)
	idx.metrics.RecordDelete(idx.since(start), err)
	return translateError(err)
}

// ListItems returns up to limit non-deleted items starting at offset, in
// ascending node-id order (insertion order). Pass limit <= 0 for no limit.
func (idx *Index) ListItems(ctx context.Context, offset, limit int) ([]Item, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}

	items := make([]Item, 0)
	skipped := 0
	for id := 0; id < idx.graph.Len(); id++ {
		if idx.graph.IsTombstoned(uint32(id)) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		node := idx.graph.NodeAt(uint32(id))
		if node == nil {
			continue
		}
		data, err := idx.backend.GetMetadata(ctx, core.LocalID(id))
		if err != nil {
			return nil, translateError(err)
		}
		var rec txn.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		items = append(items, Item{ID: rec.ItemID, Vector: node.Vector, Metadata: rec.Document, Version: rec.Version, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// BeginUpdate starts a multi-operation transaction, blocking until any
// transaction already in flight on this index has ended. Callers must
// follow with exactly one of EndUpdate or CancelUpdate.
func (idx *Index) BeginUpdate(ctx context.Context) (*txn.Transaction, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil, ErrClosed
	}
	if idx.activeTxn != nil {
		return nil, ErrTransactionInProgress
	}

	tx, err := idx.coord.Begin(ctx)
	if err != nil {
		return nil, err
	}
	idx.activeTxn = tx
	return tx, nil
}

// EndUpdate commits a transaction started by BeginUpdate.
func (idx *Index) EndUpdate(ctx context.Context, tx *txn.Transaction) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.activeTxn = nil
	return translateError(tx.Commit(ctx))
}

// CancelUpdate rolls back a transaction started by BeginUpdate.
func (idx *Index) CancelUpdate(ctx context.Context, tx *txn.Transaction) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.activeTxn = nil
	return translateError(tx.Rollback(ctx))
}

// Close flushes and releases every resource the index holds. The Index
// must not be used after Close returns.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	var firstErr error
	if idx.log != nil {
		if err := idx.log.Close(); err != nil {
			firstErr = err
		}
	}
	if err := idx.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (idx *Index) score(distance float32) float32 {
	return metric.Score(distance, idx.scoreMapping)
}

func (idx *Index) now() time.Time                  { return time.Now() }
func (idx *Index) since(t time.Time) time.Duration { return time.Since(t) }
