package session

import (
	"github.com/lpm24/SuperSmashTexty-sub002/internal/protocol"
)

// RegisterHandler installs the handler for a message type, replacing any
// existing one. At most one handler per type.
func (s *Session) RegisterHandler(t protocol.MessageType, h Handler) {
	if t == "" || h == nil {
		s.logger.Warn().Msg("ignoring handler registration with empty type or nil handler")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[t]; exists {
		s.logger.Debug().Str("type", string(t)).Msg("replacing message handler")
	}
	s.handlers[t] = h
}

// UnregisterHandler removes the handler for a message type if present.
func (s *Session) UnregisterHandler(t protocol.MessageType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, t)
}

// ClearHandlers empties the handler map. Used at teardown and scene
// transitions.
func (s *Session) ClearHandlers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = make(map[protocol.MessageType]Handler)
}

// dispatch demultiplexes one inbound envelope to its registered handler.
// Pure demultiplexing: the handler runs synchronously on the receiving
// goroutine, under the dispatch lock. An envelope with no handler is
// dropped with a diagnostic.
func (s *Session) dispatch(env protocol.Envelope, from string) {
	s.mu.Lock()
	h := s.handlers[env.Type]
	s.mu.Unlock()

	if h == nil {
		s.logger.Debug().
			Str("type", string(env.Type)).
			Str("from", from).
			Msg("no handler registered, dropping message")
		return
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	h(env.Payload, from)
}
