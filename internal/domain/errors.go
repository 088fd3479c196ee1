package domain

import "errors"

// Backend errors. Every adapter primitive returns one of these
// (optionally wrapped with context) and nothing else.
var (
	// ErrNotFound indicates the requested path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrUnauthorized indicates the backend refused access to the path
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConnection indicates the backend could not be reached
	ErrConnection = errors.New("connection failure")

	// ErrBackend is the catch-all for faults reported by the backend itself
	ErrBackend = errors.New("backend error")
)

// Errors raised locally by adapters and the transfer engine
var (
	// ErrPathNotEmpty is returned when deleting a non-empty directory without recursion
	ErrPathNotEmpty = errors.New("path not empty")

	// ErrIntegrity indicates the destination does not match the source after a copy
	ErrIntegrity = errors.New("integrity check failed")

	// ErrInvalidPath indicates a path outside the adapter's root or a malformed path
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidArgument indicates an invalid argument combination
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupported indicates the backend has no primitive for the operation
	ErrUnsupported = errors.New("operation not supported")

	// ErrIsDirectory indicates a file was expected but a directory was found
	ErrIsDirectory = errors.New("is a directory")

	// ErrChunkOversize indicates a leftover chunk file larger than its window.
	// It has to be removed by hand before the copy is retried.
	ErrChunkOversize = errors.New("chunk file larger than chunk size")

	// ErrConcatFailed indicates chunk files could not be merged into the destination
	ErrConcatFailed = errors.New("failed to concat chunk files")

	// ErrRetryExhausted indicates an operation kept failing past its attempt budget
	ErrRetryExhausted = errors.New("retry budget exhausted")
)

// Config errors
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// IsTransient reports whether err is worth retrying.
// Only connection failures and generic backend faults qualify.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrBackend)
}
