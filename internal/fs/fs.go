// Package fs provides the filesystem abstraction used by the record store.
//
// The main types are:
//   - [FS]: interface for the filesystem operations recdb performs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os]
//   - [Chaos]: testing implementation that injects failures
//   - [Locker]: advisory flock(2) locks for cross-process ownership
//
// Every record operation opens a short-lived [File] through an [FS], so
// swapping [Real] for [Chaos] is enough to exercise the I/O failure paths of
// the whole engine.
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// Record I/O is positional: callers [io.Seeker.Seek] to a row offset and then
// read or write the row bytes in one sequence.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for flock and fdatasync.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations needed by recdb.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for testing with fault injection.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions.
	// See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// WriteFileAtomic writes data to path via temp file + rename, so readers
	// never observe a partially written file.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
