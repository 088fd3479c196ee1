package domain

import (
	"errors"
)

// Process exit codes reported by the command surface
const (
	ExitOK             = 0
	ExitFailure        = 1
	ExitInvalid        = 2
	ExitNotFound       = 3
	ExitUnauthorized   = 4
	ExitNotEmpty       = 5
	ExitIntegrity      = 6
	ExitUnsupported    = 7
	ExitRetryExhausted = 100
	ExitConcatFailed   = 101
)

// ExitCode maps an error to the exit code the CLI reports for it.
// Order matters: a retry-exhausted copy wraps the transient cause,
// so it is checked before the backend kinds.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConcatFailed):
		return ExitConcatFailed
	case errors.Is(err, ErrRetryExhausted):
		return ExitRetryExhausted
	case errors.Is(err, ErrIntegrity):
		return ExitIntegrity
	case errors.Is(err, ErrPathNotEmpty):
		return ExitNotEmpty
	case errors.Is(err, ErrUnauthorized):
		return ExitUnauthorized
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrUnsupported):
		return ExitUnsupported
	case errors.Is(err, ErrInvalidPath),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrIsDirectory),
		errors.Is(err, ErrChunkOversize),
		errors.Is(err, ErrConfigInvalid),
		errors.Is(err, ErrConfigNotFound):
		return ExitInvalid
	default:
		return ExitFailure
	}
}

// Worst returns the more severe of two exit codes.
// A higher code is always considered worse.
func Worst(a, b int) int {
	if b > a {
		return b
	}
	return a
}

// WorstCode returns the most severe exit code among err and the errors
// joined into it.
func WorstCode(err error) int {
	code := ExitCode(err)
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return code
	}
	for _, e := range joined.Unwrap() {
		code = Worst(code, WorstCode(e))
	}
	return code
}
