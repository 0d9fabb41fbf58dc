// Package errors defines the sentinel error kinds shared across the
// cloudsync layers. The remote source maps server responses onto these
// so the file repository can decide recovery per kind with errors.Is.
package errors

import "errors"

// Remote operation errors.
var (
	// ErrNotFound means the remote item vanished: the requested path (or
	// an operation's source) no longer exists on the server.
	ErrNotFound = errors.New("remote item not found")

	// ErrConflict means the remote target or parent vanished, or the
	// server rejected the operation on a version precondition.
	ErrConflict = errors.New("remote conflict")
)

// Local errors raised before any remote side effect.
var (
	// ErrAlreadyExists means a record already occupies the destination
	// path for the same owner and space.
	ErrAlreadyExists = errors.New("a file with that name already exists")
)

// Transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
