package storage

import "errors"

var (
	// ErrNotFound is returned when a requested key has no record.
	ErrNotFound = errors.New("storage: not found")
	// ErrAlreadyLocked is returned when the index directory's lock file is
	// already held by another process.
	ErrAlreadyLocked = errors.New("storage: index directory is locked by another process")
	// ErrCorruption is returned when a stored record fails its structural
	// or checksum validation on read.
	ErrCorruption = errors.New("storage: corrupted record")
	// ErrSchemaVersionMismatch is returned when an on-disk format version
	// does not match what this build understands.
	ErrSchemaVersionMismatch = errors.New("storage: schema version mismatch")
	// ErrClosed is returned when an operation is attempted on a closed backend.
	ErrClosed = errors.New("storage: backend is closed")
)
