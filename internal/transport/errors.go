package transport

import "errors"

// Error kinds surfaced to callers of identity creation, claim and dial.
// Implementations wrap these so callers can classify with errors.Is.
var (
	// ErrIdentifierTaken means the claimed name is held by another live
	// identity. Recoverable: the caller retries with a fresh name.
	ErrIdentifierTaken = errors.New("identifier already taken")

	// ErrTransportUnavailable means the rendezvous/signaling infrastructure
	// could not be reached at all. Terminal.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrPeerUnreachable means the requested remote identity could not be
	// found or contacted. Terminal.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrServerError is a generic infrastructure fault. Terminal.
	ErrServerError = errors.New("transport server error")

	// ErrTimeout means a bounded operation exceeded its deadline. Terminal.
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed means the identity or connection has been torn down.
	ErrClosed = errors.New("transport endpoint closed")
)
