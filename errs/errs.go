// Package errs defines the error taxonomy the pager reports through.
//
// Every fallible operation returns an error that wraps exactly one of
// the sentinels below, so callers can branch on kind with errors.Is
// instead of parsing messages.
package errs

import "errors"

var (
	// ErrInvalidArgument marks a caller-supplied value that is out of
	// range or otherwise malformed (empty path, zero size_required,
	// out-of-range page number).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState marks an operation that is well-formed but illegal
	// given the current state of a page or transaction (freeing an
	// overflow-rest page, writing through a read-only transaction,
	// committing a closed one).
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound marks a lookup that found nothing.
	ErrNotFound = errors.New("not found")

	// ErrNotAFile marks a path that resolves to something other than a
	// regular file (a directory, a device, ...).
	ErrNotAFile = errors.New("not a file")

	// ErrIsADirectory marks a path that resolves to a directory where a
	// file was expected.
	ErrIsADirectory = errors.New("is a directory")

	// ErrNoSpace marks a failed allocation: the bitmap search found no
	// sufficient run, or preallocation could not grow the file.
	ErrNoSpace = errors.New("no space")

	// ErrIO marks a failure reported by the underlying filesystem
	// (open, map, write, fsync, close).
	ErrIO = errors.New("i/o error")

	// ErrCorruption marks an on-disk header that fails validation:
	// magic, version, page size, or pages-per-metadata-section mismatch.
	ErrCorruption = errors.New("corruption")
)
