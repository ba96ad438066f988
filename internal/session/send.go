package session

import (
	"github.com/lpm24/SuperSmashTexty-sub002/internal/protocol"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

// SendToHost sends one message over the client's host connection. A no-op
// with a warning when the session is not ready, is hosting, or has no host
// connection.
func (s *Session) SendToHost(t protocol.MessageType, payload any) {
	s.mu.Lock()
	if s.st != stateReady {
		s.mu.Unlock()
		s.logger.Warn().Str("type", string(t)).Msg("send_to_host on uninitialized session, dropping")
		return
	}
	if s.role != RoleClient {
		s.mu.Unlock()
		s.logger.Warn().Str("type", string(t)).Msg("send_to_host called while hosting, dropping")
		return
	}
	conn := s.hostConn
	s.mu.Unlock()

	if conn == nil {
		s.logger.Warn().Str("type", string(t)).Msg("send_to_host with no host connection, dropping")
		return
	}
	s.sendEnvelope(conn, t, payload)
}

// SendToPeer sends one message to a single registered peer. A no-op with a
// warning when the session is not ready, is not hosting, or the identifier
// is unknown.
func (s *Session) SendToPeer(peerID string, t protocol.MessageType, payload any) {
	if !s.hostReady(t) {
		return
	}

	conn, ok := s.peers.Get(peerID)
	if !ok {
		s.logger.Warn().
			Str("type", string(t)).
			Str("peer", peerID).
			Msg("send_to_peer for unknown peer, dropping")
		return
	}
	s.sendEnvelope(conn, t, payload)
}

// Broadcast sends one message to every registered peer except the excluded
// identifiers. Sends are independent: one failing peer does not stop the
// others, and delivery order across peers is unspecified.
func (s *Session) Broadcast(t protocol.MessageType, payload any, exclude ...string) {
	if !s.hostReady(t) {
		return
	}

	frame, err := protocol.EncodeEnvelope(t, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", string(t)).Msg("broadcast encode failed, dropping")
		return
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	for id, conn := range s.peers.Snapshot() {
		if _, skip := excluded[id]; skip {
			continue
		}
		if err := conn.Send(frame); err != nil {
			s.logger.Warn().Err(err).Str("peer", id).Str("type", string(t)).Msg("broadcast send failed")
		}
	}
}

// hostReady checks the preconditions shared by the host-side primitives.
func (s *Session) hostReady(t protocol.MessageType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st != stateReady {
		s.logger.Warn().Str("type", string(t)).Msg("send on uninitialized session, dropping")
		return false
	}
	if s.role != RoleHost {
		s.logger.Warn().Str("type", string(t)).Msg("host-side send called by client, dropping")
		return false
	}
	return true
}

func (s *Session) sendEnvelope(conn transport.Conn, t protocol.MessageType, payload any) {
	frame, err := protocol.EncodeEnvelope(t, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", string(t)).Msg("envelope encode failed, dropping")
		return
	}
	if err := conn.Send(frame); err != nil {
		s.logger.Warn().Err(err).Str("peer", conn.RemoteID()).Str("type", string(t)).Msg("send failed")
	}
}
