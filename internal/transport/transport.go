// Package transport defines the narrow contract the session layer expects
// from the underlying point-to-point channel: create a local identity,
// claim an addressable name for it, accept inbound connections, dial a
// remote identity, and move opaque frames over an established connection.
//
// Two implementations ship with this repository: an in-process memory
// network used by tests and local matches, and a TCP implementation that
// discovers remote addresses through the rendezvous service.
package transport

import (
	"context"
	"time"
)

// AssistConfig carries the connectivity-assist endpoints handed to the
// transport at identity-creation time. The session layer passes it through
// without interpreting it.
type AssistConfig struct {
	// Endpoints are address-discovery / relay endpoints, tried in order.
	Endpoints []string

	// RegistrationTTL bounds how long a claimed identity stays resolvable
	// without a heartbeat. Zero means the transport default.
	RegistrationTTL time.Duration

	// HeartbeatInterval is how often a claimed identity refreshes its
	// registration. Zero means the transport default.
	HeartbeatInterval time.Duration
}

// Transport creates local channel identities.
type Transport interface {
	// CreateIdentity allocates a new local identity with a transport-assigned
	// ephemeral name. The identity is dialable-from only after Claim.
	CreateIdentity(ctx context.Context, assist AssistConfig) (Identity, error)
}

// Identity is a live local endpoint on the channel namespace.
type Identity interface {
	// ID returns the current identity name: the ephemeral name until a
	// successful Claim, the claimed name afterwards.
	ID() string

	// Claim registers the given name with the channel namespace so remote
	// peers can dial it. Returns ErrIdentifierTaken when the name is held
	// by another live identity. At most one successful Claim per identity.
	Claim(ctx context.Context, id string) error

	// Accept blocks until an inbound connection has completed its open
	// handshake, the context is cancelled, or the identity is closed
	// (ErrClosed).
	Accept(ctx context.Context) (Conn, error)

	// Dial opens an outbound connection to a remote identity in reliable
	// mode. The remote must have claimed its name.
	Dial(ctx context.Context, remoteID string) (Conn, error)

	// Close destroys the identity: the claimed name is released and all
	// pending Accepts fail. Safe to call more than once.
	Close() error
}

// Conn is an established reliable, ordered connection to one remote peer.
type Conn interface {
	// RemoteID returns the identity name of the remote end.
	RemoteID() string

	// Send transmits one opaque frame. Serialization is the caller's business.
	Send(frame []byte) error

	// Recv blocks until the next frame arrives or the connection closes.
	Recv() ([]byte, error)

	// Close tears down the connection. Safe to call more than once.
	Close() error
}
