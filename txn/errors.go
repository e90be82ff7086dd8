package txn

import "errors"

// ErrDuplicateID is returned by Transaction.InsertItem when the caller
// supplies an item id that already backs a live (non-tombstoned) item.
var ErrDuplicateID = errors.New("txn: item id already exists")

// ErrMetadataTooLarge is returned by Transaction.InsertItem and
// Transaction.UpdateItem when a document's encoded size exceeds the field
// index's configured Config.EffectiveMaxSize.
var ErrMetadataTooLarge = errors.New("txn: metadata document exceeds configured size limit")
