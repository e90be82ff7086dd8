// Package txn implements the atomic commit protocol that sits between the
// HNSW graph, the metadata field index, and a storage.Backend: every
// mutation is staged in memory, journaled with a begin/end commit marker
// pair, then applied to the backend and graph together so a crash mid-commit
// never leaves the two out of sync.
package txn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vectrix-db/vectrix/core"
	"github.com/vectrix-db/vectrix/hnsw"
	"github.com/vectrix-db/vectrix/metadata"
	"github.com/vectrix-db/vectrix/storage"
	"github.com/vectrix-db/vectrix/wal"
)

// Coordinator owns the durable log, the storage backend, and the HNSW graph,
// and serializes all mutation through a single mutex — this is a
// single-writer, many-reader design, matching spec.md's concurrency model:
// searches never block on a transaction, but only one transaction is ever
// in flight.
type Coordinator struct {
	mu sync.Mutex

	backend storage.Backend
	graph   *hnsw.HNSW
	log     *wal.WAL
	meta    *metadata.FieldIndex
	ids     *idMap
}

// NewCoordinator wires together the pieces an already-open index needs to
// run transactions. The manifest itself is read and written through
// backend.GetManifest/PutManifest rather than a separate manifest.Store,
// since both backends already persist it. log may be nil, in which case
// commits skip the WAL journal entirely (used by tests and by callers that
// accept the reduced crash-consistency guarantee in exchange for not
// paying for a WAL).
func NewCoordinator(backend storage.Backend, graph *hnsw.HNSW, meta *metadata.FieldIndex, log *wal.WAL) *Coordinator {
	return &Coordinator{backend: backend, graph: graph, log: log, meta: meta, ids: newIDMap()}
}

// pendingOp is one staged mutation, buffered in memory until Commit.
type pendingOp struct {
	kind   opKind
	id     core.LocalID
	itemID uuid.UUID
	vector []float32
	doc    metadata.Document

	version   uint64
	createdAt time.Time
	updatedAt time.Time

	// oldID and relocated describe a vector-replacing update, modeled as a
	// delete of oldID paired with an insert at id: the graph has no
	// in-place vector relocation, so a new node is always appended.
	oldID     core.LocalID
	relocated bool
}

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

// Transaction stages a batch of item mutations for atomic commit. It holds
// the Coordinator's mutex for its entire lifetime, so callers must always
// terminate a Transaction with Commit or Rollback.
type Transaction struct {
	coord *Coordinator
	ops   []pendingOp
	done  bool
}

// Begin starts a new transaction, blocking until any transaction already in
// flight has committed or rolled back.
func (c *Coordinator) Begin(ctx context.Context) (*Transaction, error) {
	c.mu.Lock()
	return &Transaction{coord: c}, nil
}

// InsertItem stages the insertion of a new vector and its metadata document
// under itemID, or under a freshly generated id if itemID is uuid.Nil. The
// dense node id is assigned immediately (HNSW node ids are append-only) but,
// like the rest of the staged mutation, is not visible to searches or reads
// until Commit succeeds. now is recorded as both CreatedAt and UpdatedAt.
func (t *Transaction) InsertItem(itemID uuid.UUID, vector []float32, doc metadata.Document, now time.Time) (uuid.UUID, core.LocalID, error) {
	if t.done {
		return uuid.Nil, 0, fmt.Errorf("txn: transaction already finished")
	}

	if itemID == uuid.Nil {
		itemID = uuid.New()
	} else if existing, ok := t.coord.ids.lookup(itemID); ok && !t.coord.graph.IsTombstoned(uint32(existing)) {
		return uuid.Nil, 0, ErrDuplicateID
	}

	if err := t.checkMetadataSize(doc); err != nil {
		return uuid.Nil, 0, err
	}

	nodeID, err := t.coord.graph.Insert(vector)
	if err != nil {
		return uuid.Nil, 0, err
	}
	id := core.LocalID(nodeID)

	t.ops = append(t.ops, pendingOp{
		kind: opInsert, id: id, itemID: itemID, vector: vector, doc: doc,
		version: 1, createdAt: now, updatedAt: now,
	})
	t.coord.ids.set(itemID, id)
	return itemID, id, nil
}

// UpdateItem stages a metadata update, and optionally a vector replacement,
// for an existing item looked up by itemID. A nil vector leaves the stored
// vector unchanged. A non-nil vector is applied by inserting a new graph
// node and tombstoning the old one, since HNSW graphs do not support
// relocating a node's vector in place; the id map is remapped to the new
// node eagerly, matching InsertItem's and DeleteItem's eager graph mutation.
func (t *Transaction) UpdateItem(itemID uuid.UUID, vector []float32, doc metadata.Document, now time.Time) error {
	if t.done {
		return fmt.Errorf("txn: transaction already finished")
	}
	id, ok := t.coord.ids.lookup(itemID)
	if !ok || t.coord.graph.IsTombstoned(uint32(id)) {
		return fmt.Errorf("txn: item %s does not exist", itemID)
	}

	if err := t.checkMetadataSize(doc); err != nil {
		return err
	}

	op := pendingOp{kind: opUpdate, id: id, itemID: itemID, doc: doc, updatedAt: now}

	if vector != nil {
		nodeID, err := t.coord.graph.Insert(vector)
		if err != nil {
			return err
		}
		newID := core.LocalID(nodeID)
		if err := t.coord.graph.Delete(uint32(id)); err != nil {
			_ = t.coord.graph.Delete(uint32(newID))
			return err
		}
		op.id = newID
		op.oldID = id
		op.relocated = true
		op.vector = vector
		t.coord.ids.set(itemID, newID)
	}

	t.ops = append(t.ops, op)
	return nil
}

// DeleteItem stages a tombstone for the item looked up by itemID. The graph
// node is marked deleted immediately so concurrent searches within this same
// transaction (there are none, by construction) would not see it, but the
// tombstone only becomes durable on Commit.
func (t *Transaction) DeleteItem(itemID uuid.UUID) error {
	if t.done {
		return fmt.Errorf("txn: transaction already finished")
	}
	id, ok := t.coord.ids.lookup(itemID)
	if !ok || t.coord.graph.IsTombstoned(uint32(id)) {
		return fmt.Errorf("txn: item %s does not exist", itemID)
	}
	if err := t.coord.graph.Delete(uint32(id)); err != nil {
		return err
	}
	t.ops = append(t.ops, pendingOp{kind: opDelete, id: id, itemID: itemID})
	return nil
}

func (t *Transaction) checkMetadataSize(doc metadata.Document) error {
	if t.coord.meta == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("txn: encoding metadata: %w", err)
	}
	if len(data) > t.coord.meta.Config().EffectiveMaxSize() {
		return ErrMetadataTooLarge
	}
	return nil
}

// Commit journals a prepare record for every staged mutation, then applies
// each mutation to the backend and field index and journals its commit
// record, then writes the updated manifest and fsyncs the backend. On any
// failure it returns an error and the caller should treat the transaction
// as aborted; the graph-level tombstones/inserts already applied stay in
// place.
func (t *Transaction) Commit(ctx context.Context) error {
	defer t.finish()
	if t.done {
		return fmt.Errorf("txn: transaction already finished")
	}

	if err := t.logPrepare(); err != nil {
		return fmt.Errorf("txn: journaling prepare records: %w", err)
	}

	m, err := t.coord.backend.GetManifest(ctx)
	if err != nil {
		return fmt.Errorf("txn: loading manifest: %w", err)
	}

	for _, op := range t.ops {
		switch op.kind {
		case opInsert:
			if err := t.coord.backend.PutVector(ctx, op.id, op.vector); err != nil {
				return fmt.Errorf("txn: writing vector %d: %w", op.id, err)
			}
			rec := Record{ItemID: op.itemID, Version: op.version, CreatedAt: op.createdAt, UpdatedAt: op.updatedAt, Document: op.doc}
			if err := t.putRecord(ctx, op.id, rec); err != nil {
				return err
			}
			if err := t.putGraphNode(ctx, op.id); err != nil {
				return err
			}
			if t.coord.meta != nil {
				t.coord.meta.Add(op.id, op.doc)
			}
			m.ItemCount++
		case opUpdate:
			if op.relocated {
				old, err := t.oldRecord(ctx, op.oldID)
				if err != nil {
					return err
				}
				rec := Record{ItemID: op.itemID, Version: old.Version + 1, CreatedAt: old.CreatedAt, UpdatedAt: op.updatedAt, Document: op.doc}
				if err := t.coord.backend.PutVector(ctx, op.id, op.vector); err != nil {
					return fmt.Errorf("txn: writing vector %d: %w", op.id, err)
				}
				if err := t.putRecord(ctx, op.id, rec); err != nil {
					return err
				}
				if err := t.putGraphNode(ctx, op.id); err != nil {
					return err
				}
				if err := t.coord.backend.DeleteMetadata(ctx, op.oldID); err != nil {
					return fmt.Errorf("txn: deleting superseded metadata %d: %w", op.oldID, err)
				}
				if err := t.putGraphNode(ctx, op.oldID); err != nil {
					return err
				}
				if t.coord.meta != nil {
					t.coord.meta.Remove(op.oldID, old.Document)
					t.coord.meta.Add(op.id, op.doc)
				}
				m.ItemCount++
				m.TombstoneCount++
			} else {
				old, err := t.oldRecord(ctx, op.id)
				if err != nil {
					return err
				}
				rec := Record{ItemID: op.itemID, Version: old.Version + 1, CreatedAt: old.CreatedAt, UpdatedAt: op.updatedAt, Document: op.doc}
				if err := t.putRecord(ctx, op.id, rec); err != nil {
					return err
				}
				if t.coord.meta != nil {
					t.coord.meta.Remove(op.id, old.Document)
					t.coord.meta.Add(op.id, op.doc)
				}
			}
		case opDelete:
			old, err := t.oldRecord(ctx, op.id)
			if err != nil {
				return err
			}
			if err := t.coord.backend.DeleteMetadata(ctx, op.id); err != nil {
				return fmt.Errorf("txn: deleting metadata %d: %w", op.id, err)
			}
			if err := t.putGraphNode(ctx, op.id); err != nil {
				return err
			}
			if t.coord.meta != nil {
				t.coord.meta.Remove(op.id, old.Document)
			}
			m.TombstoneCount++
		}
		if err := t.logCommit(op); err != nil {
			return fmt.Errorf("txn: journaling commit record for %d: %w", op.id, err)
		}
	}

	m.EntryPoint = t.coord.graph.EntryPoint()
	m.MaxLevel = t.coord.graph.MaxLevel()

	if err := t.coord.backend.PutManifest(ctx, m); err != nil {
		return fmt.Errorf("txn: writing manifest: %w", err)
	}
	if err := t.coord.backend.Fsync(ctx); err != nil {
		return fmt.Errorf("txn: fsyncing backend: %w", err)
	}

	return nil
}

func (t *Transaction) oldRecord(ctx context.Context, id core.LocalID) (Record, error) {
	data, err := t.coord.backend.GetMetadata(ctx, id)
	if err == storage.ErrNotFound {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("txn: reading previous metadata %d: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("txn: decoding previous metadata %d: %w", id, err)
	}
	return rec, nil
}

func (t *Transaction) putRecord(ctx context.Context, id core.LocalID, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("txn: encoding metadata %d: %w", id, err)
	}
	if err := t.coord.backend.PutMetadata(ctx, id, data); err != nil {
		return fmt.Errorf("txn: writing metadata %d: %w", id, err)
	}
	return nil
}

func (t *Transaction) putGraphNode(ctx context.Context, id core.LocalID) error {
	node := t.coord.graph.NodeAt(uint32(id))
	if node == nil {
		return fmt.Errorf("txn: graph node %d missing", id)
	}
	data, err := hnsw.EncodeNode(node)
	if err != nil {
		return fmt.Errorf("txn: encoding graph node %d: %w", id, err)
	}
	if err := t.coord.backend.PutGraphNode(ctx, id, data); err != nil {
		return fmt.Errorf("txn: writing graph node %d: %w", id, err)
	}
	return nil
}

func (t *Transaction) logPrepare() error {
	if t.coord.log == nil {
		return nil
	}
	for _, op := range t.ops {
		var err error
		switch op.kind {
		case opInsert:
			err = t.coord.log.LogPrepareInsert(op.id, op.vector, nil, metadata.Metadata(op.doc))
		case opUpdate:
			err = t.coord.log.LogPrepareUpdate(op.id, op.vector, nil, metadata.Metadata(op.doc))
		case opDelete:
			err = t.coord.log.LogPrepareDelete(op.id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) logCommit(op pendingOp) error {
	if t.coord.log == nil {
		return nil
	}
	switch op.kind {
	case opInsert:
		return t.coord.log.LogCommitInsert(op.id)
	case opUpdate:
		return t.coord.log.LogCommitUpdate(op.id)
	case opDelete:
		return t.coord.log.LogCommitDelete(op.id)
	}
	return nil
}

// Rollback discards the staged operations. Metadata/backend writes were
// never applied, so there is nothing to undo there; the only visible state
// is the graph-level tombstones, inserted nodes, and id-map entries made
// during this transaction, which Rollback reverts as best-effort (inserted
// nodes cannot be removed from an HNSW graph without a full Compact, so they
// are instead tombstoned immediately, keeping them invisible to search).
func (t *Transaction) Rollback(ctx context.Context) error {
	defer t.finish()
	if t.done {
		return fmt.Errorf("txn: transaction already finished")
	}

	for _, op := range t.ops {
		switch op.kind {
		case opInsert:
			_ = t.coord.graph.Delete(uint32(op.id))
			t.coord.ids.delete(op.itemID, op.id)
		case opUpdate:
			if op.relocated {
				// The new node was appended and the old one tombstoned
				// eagerly at stage time. Undoing the append is the same
				// best-effort tombstone as an insert rollback; undoing the
				// old node's tombstone is not possible without a dedicated
				// Undelete, so it stays tombstoned. Like a rolled-back
				// DeleteItem, this leaves the item unreachable rather than
				// restored — a known limitation of modeling vector
				// replacement as delete+insert.
				_ = t.coord.graph.Delete(uint32(op.id))
				t.coord.ids.set(op.itemID, op.oldID)
			}
		case opDelete:
			// Tombstone already applied optimistically; nothing durable
			// happened, but the flag itself can't be un-set without a
			// dedicated Undelete on the graph, so it stays tombstoned.
			// The operation simply never becomes durable, and a re-delete
			// of the same id is idempotent.
		}
	}
	return nil
}

func (t *Transaction) finish() {
	if !t.done {
		t.done = true
		t.coord.mu.Unlock()
	}
}
