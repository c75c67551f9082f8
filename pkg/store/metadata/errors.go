package metadata

import "errors"

// StoreError represents a domain error returned by a metadata store.
//
// These are business logic errors (record not found, username taken, quota
// exhausted) as opposed to infrastructure errors (network failure, disk
// error), which are returned wrapped as-is.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the file or username related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested account or file doesn't exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates a username or (owner, filename) pair is taken
	ErrAlreadyExists

	// ErrConflict indicates a conditional update lost against a concurrent writer
	// Example: AdvanceLastValid with a stale expected offset
	ErrConflict

	// ErrNoSpace indicates a free-space change would leave the account below zero,
	// or a total-space change would fall below the space already used
	ErrNoSpace

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: chunk past the declared size, credit above total space
	ErrInvalidArgument

	// ErrIOError indicates the stored record could not be read or decoded
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrConflict:
		return "conflict"
	case ErrNoSpace:
		return "no space"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "io error"
	default:
		return "unknown"
	}
}

// IsCode reports whether err is a *StoreError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found store error.
func IsNotFound(err error) bool {
	return IsCode(err, ErrNotFound)
}

// NewNotFoundError builds a not-found error for the given kind of record.
func NewNotFoundError(kind, path string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: kind + " not found", Path: path}
}
