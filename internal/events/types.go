// Package events defines the session lifecycle event stream: typed events
// delivered in order to named subscribers.
package events

// Type identifies a lifecycle event.
type Type string

const (
	// PeerJoin fires on the host when a client connection completes its
	// open handshake.
	PeerJoin Type = "peer_join"

	// PeerLeave fires on the host when a registered client connection
	// closes, remote-initiated or through network failure.
	PeerLeave Type = "peer_leave"

	// HostDisconnect fires on a client, exactly once per disconnect, when
	// the connection to the host closes.
	HostDisconnect Type = "host_disconnect"
)

// Event is one lifecycle transition. PeerID is the remote identity for
// PeerJoin/PeerLeave and empty for HostDisconnect.
type Event struct {
	Type   Type
	PeerID string
}
