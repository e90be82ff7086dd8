package txn

import (
	"time"

	"github.com/google/uuid"

	"github.com/vectrix-db/vectrix/metadata"
)

// Record is the durable envelope a Transaction persists into a
// storage.Backend's metadata slot for a single item: the caller-facing id
// that the dense, append-only core.LocalID a backend record is actually
// keyed under never carries, plus the version/timestamp bookkeeping the
// root package's Item type exposes, plus the metadata document itself.
type Record struct {
	ItemID    uuid.UUID         `json:"item_id"`
	Version   uint64            `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Document  metadata.Document `json:"metadata"`
}
