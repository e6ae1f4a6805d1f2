package recdb

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by recdb operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, recdb.ErrRecordNotFound) {
//	    // row is absent or deleted
//	}
var (
	// ErrRecordNotFound indicates the row does not exist or is deleted.
	ErrRecordNotFound = errors.New("recdb: record not found")

	// ErrLockMismatch indicates the row is not locked, or is locked with a
	// different cookie than the one supplied.
	ErrLockMismatch = errors.New("recdb: lock mismatch")

	// ErrDuplicateKey is reserved. The store has no key constraint, so no
	// operation returns it today.
	ErrDuplicateKey = errors.New("recdb: duplicate key")

	// ErrMetadataCorrupt indicates the file header is truncated or malformed.
	//
	// Recovery: restore the data file from a backup.
	ErrMetadataCorrupt = errors.New("recdb: metadata corrupt")

	// ErrIO indicates the underlying file could not be read or written.
	// The OS error is wrapped as well.
	ErrIO = errors.New("recdb: io failure")

	// ErrInvalidInput indicates invalid arguments, such as more values than
	// the schema has fields.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("recdb: invalid input")

	// ErrClosed indicates the [DB] has been closed.
	ErrClosed = errors.New("recdb: closed")

	// ErrBusy indicates another process owns the data file
	// (see [Options.Exclusive]).
	ErrBusy = errors.New("recdb: busy")
)

// ioError wraps err under ErrIO, keeping err reachable for errors.Is/As.
func ioError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, what, err)
}
