package vectrix

import (
	"errors"
	"fmt"

	"github.com/vectrix-db/vectrix/storage"
	"github.com/vectrix-db/vectrix/txn"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrNotFound is returned when an item id has no record.
	ErrNotFound = errors.New("item not found")
	// ErrAlreadyExists is returned by InsertItem when the id is already in use.
	ErrAlreadyExists = errors.New("item already exists")
	// ErrClosed is returned when an operation is attempted on a closed index.
	ErrClosed = errors.New("index is closed")
	// ErrTransactionInProgress is returned by BeginUpdate when a transaction
	// is already open on this index.
	ErrTransactionInProgress = errors.New("a transaction is already in progress")
	// ErrMetadataTooLarge is returned by InsertItem and UpdateItem when a
	// document's encoded size exceeds the index's configured MaxSizeBytes.
	ErrMetadataTooLarge = errors.New("metadata document exceeds configured size limit")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidFilter indicates a metadata filter expression failed validation
// (unknown operator, wrong child arity, non-leaf fields on a boolean node).
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidFilter struct {
	Reason string
	cause  error
}

func (e *ErrInvalidFilter) Error() string {
	return fmt.Sprintf("invalid filter: %s", e.Reason)
}

func (e *ErrInvalidFilter) Unwrap() error { return e.cause }

// translateError maps internal package errors (storage, txn) onto
// the small set of public sentinel/typed errors callers are expected to
// match against with errors.Is/errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, txn.ErrDuplicateID) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	if errors.Is(err, txn.ErrMetadataTooLarge) {
		return fmt.Errorf("%w: %w", ErrMetadataTooLarge, err)
	}

	return err
}
