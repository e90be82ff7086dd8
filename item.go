package vectrix

import (
	"time"

	"github.com/google/uuid"

	"github.com/vectrix-db/vectrix/metadata"
)

// Item is a single stored vector plus its metadata document, identified by
// a caller-facing id. Version starts at 1 on insert and is incremented on
// every successful update. Deleted is always false on an Item returned by
// GetItem, ListItems, or QueryItems: those read paths exclude tombstoned
// items entirely rather than surfacing a soft-deleted one.
type Item struct {
	ID        uuid.UUID
	Vector    []float32
	Metadata  metadata.Document
	Version   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
}
