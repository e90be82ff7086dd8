package txn

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vectrix-db/vectrix/core"
)

// idMap tracks the bidirectional mapping between a caller-facing item id and
// the dense, append-only core.LocalID the HNSW graph and storage backend
// actually key their records under. It is reconstructed on open the same way
// the metadata field index and graph are: by replaying every live record.
type idMap struct {
	mu       sync.RWMutex
	toLocal  map[uuid.UUID]core.LocalID
	toItemID map[core.LocalID]uuid.UUID
}

func newIDMap() *idMap {
	return &idMap{
		toLocal:  make(map[uuid.UUID]core.LocalID),
		toItemID: make(map[core.LocalID]uuid.UUID),
	}
}

func (m *idMap) lookup(itemID uuid.UUID) (core.LocalID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.toLocal[itemID]
	return id, ok
}

func (m *idMap) lookupItemID(id core.LocalID) (uuid.UUID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	itemID, ok := m.toItemID[id]
	return itemID, ok
}

func (m *idMap) set(itemID uuid.UUID, id core.LocalID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toLocal[itemID] = id
	m.toItemID[id] = itemID
}

// delete removes itemID's mapping without touching any other entry. Used
// when rolling back a staged insert or relocation.
func (m *idMap) delete(itemID uuid.UUID, id core.LocalID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.toLocal[itemID]; ok && cur == id {
		delete(m.toLocal, itemID)
	}
	if cur, ok := m.toItemID[id]; ok && cur == itemID {
		delete(m.toItemID, id)
	}
}

// Lookup returns the dense LocalID currently backing itemID.
func (c *Coordinator) Lookup(itemID uuid.UUID) (core.LocalID, bool) {
	return c.ids.lookup(itemID)
}

// LookupItemID returns the caller-facing id backed by the dense LocalID id.
func (c *Coordinator) LookupItemID(id core.LocalID) (uuid.UUID, bool) {
	return c.ids.lookupItemID(id)
}

// RestoreMapping registers a (itemID, id) pair recovered while replaying
// durable records on open. It must not be called concurrently with staged
// transactions against the same Coordinator.
func (c *Coordinator) RestoreMapping(itemID uuid.UUID, id core.LocalID) {
	c.ids.set(itemID, id)
}
