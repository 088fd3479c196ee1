package adapter

import (
	"context"

	"github.com/Ning0612/ferry/internal/domain"
)

// Backend defines the primitives every storage medium provides.
// Paths are absolute and slash separated.
// Implementations must map every failure to a domain error:
// ErrNotFound, ErrUnauthorized, ErrConnection or ErrBackend, plus
// ErrPathNotEmpty from Delete, ErrIsDirectory from ReadRange on a
// directory, ErrUnsupported from Concat or CopyWithin where the medium
// lacks them, ErrInvalidArgument from CopyWithin onto its own source, and
// ErrInvalidPath for paths outside the adapter's root.
type Backend interface {
	// Scheme identifies the backend type ("file", "hdfs")
	Scheme() string

	// Stat returns metadata for a single path
	Stat(ctx context.Context, path string) (domain.FileInfo, error)

	// List returns the direct children of a directory
	List(ctx context.Context, path string) ([]domain.FileInfo, error)

	// Mkdir creates a directory and any necessary parents
	// No error if directory already exists
	Mkdir(ctx context.Context, path string) error

	// Touch creates an empty file, or updates the mtime of an existing one
	Touch(ctx context.Context, path string) error

	// Truncate shrinks a file to size bytes
	Truncate(ctx context.Context, path string, size int64) error

	// Delete removes a path. Non-empty directories need recursive.
	Delete(ctx context.Context, path string, recursive bool) error

	// ReadRange returns up to length bytes starting at offset.
	// Reading at or past the end of the file returns an empty slice.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)

	// Append writes data at the end of an existing file
	Append(ctx context.Context, path string, data []byte) error

	// Rename moves a path within this backend
	Rename(ctx context.Context, src, dst string) error

	// Concat appends the sources, in order, onto path and removes them
	Concat(ctx context.Context, path string, sources []string) error

	// CopyWithin copies a file without leaving the backend
	CopyWithin(ctx context.Context, src, dst string) error

	// Close releases any resources held by the adapter
	Close() error
}

// WithinCopier is implemented by backends that can tell up front whether
// CopyWithin is available
type WithinCopier interface {
	CanCopyWithin() bool
}

// CanCopyWithin reports whether b copies files without leaving the
// backend. Backends that do not say are assumed to.
func CanCopyWithin(b Backend) bool {
	if c, ok := b.(WithinCopier); ok {
		return c.CanCopyWithin()
	}
	return true
}

// SameBackend reports whether two handles address the same storage medium
func SameBackend(a, b Backend) bool {
	return a.Scheme() == b.Scheme()
}
