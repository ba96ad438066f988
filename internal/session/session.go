// Package session implements the host-authoritative multiplayer session
// layer: identity negotiation from a short invite code, connection
// lifecycle, typed message dispatch, and unicast/broadcast primitives over
// the raw transport.
//
// A Session is an explicit value threaded through all operations; there is
// no package-global state. Its lifecycle is a tagged state machine:
// idle -> opening -> ready -> closed. Every inbound message handler and
// lifecycle callback runs under one dispatch lock, so no two callbacks
// ever run concurrently. Callbacks must not block and must not call
// Disconnect from within themselves.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/events"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/protocol"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/util"
)

// Role says whether this process owns the peer registry or holds a single
// connection to a host.
type Role int

const (
	RoleHost Role = iota + 1
	RoleClient
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// Session lifecycle states.
type state int

const (
	stateIdle state = iota
	stateOpening
	stateReady
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateOpening:
		return "opening"
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Defaults applied by New when an Options field is zero.
const (
	DefaultCodePrefix     = "smashtexty-"
	DefaultCodeLength     = 6
	DefaultConnectTimeout = 30 * time.Second
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultMaxCodeRetries = 16
)

// Errors surfaced by session operations.
var (
	// ErrNotReady means the session has no live identity.
	ErrNotReady = errors.New("session not initialized")

	// ErrAlreadyOpen means Open was called on a session that already has,
	// or is acquiring, an identity.
	ErrAlreadyOpen = errors.New("session already open")

	// ErrWrongRole means the operation belongs to the other role.
	ErrWrongRole = errors.New("operation not valid for this role")

	// ErrAlreadyConnected means the client already holds a host connection.
	ErrAlreadyConnected = errors.New("already connected to a host")
)

// Handler consumes one dispatched message. payload is the raw envelope
// payload; from is the sender's channel identifier. Handlers must not block.
type Handler func(payload json.RawMessage, from string)

// Options configures a Session.
type Options struct {
	// Transport is the raw channel implementation. Required.
	Transport transport.Transport

	// Assist is passed through to the transport at identity creation.
	Assist transport.AssistConfig

	// CodePrefix is prepended to invite codes to form channel identifiers.
	CodePrefix string

	// CodeLength is the width of generated invite codes.
	CodeLength int

	// ConnectTimeout bounds a client's ConnectToHost attempt.
	ConnectTimeout time.Duration

	// SettleDelay is the wait after an identifier collision, letting the
	// stale remote registration expire before the next claim.
	SettleDelay time.Duration

	// MaxCodeRetries caps collision retries. 0 retries forever.
	MaxCodeRetries int
}

// Session is the connection manager for one multiplayer session.
type Session struct {
	opts   Options
	bus    *events.Bus
	logger zerolog.Logger

	// dispatchMu serializes every message handler and lifecycle callback,
	// standing in for the original single event loop.
	dispatchMu sync.Mutex

	mu           sync.Mutex
	st           state
	role         Role
	identity     transport.Identity
	localID      string
	acceptCancel context.CancelFunc

	// Client side: the single connection to the host.
	hostID   string
	hostConn transport.Conn
	hostDown bool

	// Host side: one entry per remote identifier.
	peers *Registry

	handlers map[protocol.MessageType]Handler

	wg sync.WaitGroup
}

// New creates an idle session. Zero Options fields take the package
// defaults; Transport is required.
func New(opts Options) *Session {
	if opts.CodePrefix == "" {
		opts.CodePrefix = DefaultCodePrefix
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = DefaultCodeLength
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.MaxCodeRetries == 0 {
		opts.MaxCodeRetries = DefaultMaxCodeRetries
	}

	return &Session{
		opts:     opts,
		bus:      events.NewBus(),
		logger:   util.ComponentLogger("session"),
		peers:    NewRegistry(),
		handlers: make(map[protocol.MessageType]Handler),
	}
}

// Open acquires a transport identity and fixes the session role. Hosts
// derive their identifier from code (generated when empty) and return the
// final invite code, which differs from the input when a collision forced
// a retry. Clients acquire an ephemeral identity and return "".
//
// On success the host starts accepting connections.
func (s *Session) Open(ctx context.Context, role Role, code string) (string, error) {
	if s.opts.Transport == nil {
		return "", errors.New("session has no transport")
	}
	if role != RoleHost && role != RoleClient {
		return "", fmt.Errorf("invalid role %d", role)
	}

	s.mu.Lock()
	if s.st != stateIdle {
		st := s.st
		s.mu.Unlock()
		return "", fmt.Errorf("%w (state %s)", ErrAlreadyOpen, st)
	}
	s.st = stateOpening
	s.mu.Unlock()

	identity, finalCode, err := s.acquireIdentity(ctx, role, code)
	if err != nil {
		s.mu.Lock()
		if s.st == stateOpening {
			s.st = stateIdle
		}
		s.mu.Unlock()
		return "", err
	}

	s.mu.Lock()
	if s.st != stateOpening {
		// Torn down while negotiating.
		s.mu.Unlock()
		identity.Close()
		return "", ErrNotReady
	}
	s.role = role
	s.identity = identity
	s.localID = identity.ID()
	s.hostDown = false
	s.st = stateReady

	var acceptCtx context.Context
	if role == RoleHost {
		acceptCtx, s.acceptCancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	if role == RoleHost {
		s.wg.Add(1)
		go s.acceptLoop(acceptCtx, identity)
	}

	s.logger.Info().
		Str("role", role.String()).
		Str("id", identity.ID()).
		Msg("session ready")
	return finalCode, nil
}

// ConnectToHost opens the single outbound connection to the host derived
// from hostCode, bounded by the configured connect timeout. It does not
// send any application-level join message; that is the caller's business.
func (s *Session) ConnectToHost(ctx context.Context, hostCode string) error {
	s.mu.Lock()
	if s.st != stateReady {
		st := s.st
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotReady, st)
	}
	if s.role != RoleClient {
		s.mu.Unlock()
		return fmt.Errorf("%w: connect_to_host requires the client role", ErrWrongRole)
	}
	if s.hostConn != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	identity := s.identity
	prefix := s.opts.CodePrefix
	timeout := s.opts.ConnectTimeout
	s.mu.Unlock()

	hostID := prefix + hostCode

	// The deferred cancel releases the timer on every exit path, so a
	// stale deadline can never fire after the outcome is decided.
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := identity.Dial(dialCtx, hostID)
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("connect to %q: %w", hostID, transport.ErrTimeout)
		}
		return fmt.Errorf("connect to %q: %w", hostID, err)
	}

	s.mu.Lock()
	if s.st != stateReady || s.hostConn != nil {
		alreadyConnected := s.hostConn != nil
		s.mu.Unlock()
		conn.Close()
		if alreadyConnected {
			return ErrAlreadyConnected
		}
		return ErrNotReady
	}
	s.hostConn = conn
	s.hostID = conn.RemoteID()
	s.hostDown = false
	s.mu.Unlock()

	s.wg.Add(1)
	go s.recvLoop(conn)

	s.logger.Info().Str("host", conn.RemoteID()).Msg("connected to host")
	return nil
}

// acceptLoop admits inbound connections while the session hosts.
func (s *Session) acceptLoop(ctx context.Context, identity transport.Identity) {
	defer s.wg.Done()

	for {
		conn, err := identity.Accept(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.registerPeer(conn)
	}
}

// registerPeer records a connection that completed its open handshake and
// fires the join event. A stale entry under the same identifier is closed
// first, so the registry never holds two connections for one remote.
func (s *Session) registerPeer(conn transport.Conn) {
	s.mu.Lock()
	if s.st != stateReady || s.role != RoleHost {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.mu.Unlock()

	remote := conn.RemoteID()
	if displaced := s.peers.Register(remote, conn); displaced != nil {
		s.logger.Warn().Str("peer", remote).Msg("displacing stale connection for peer")
		displaced.Close()
	}

	// Teardown can interleave between the state check and the insert above,
	// clearing a registry the entry just missed. Re-check before announcing
	// the peer; on a lost race the entry is withdrawn and the connection
	// closed here, since nothing else holds it anymore.
	s.mu.Lock()
	if s.st != stateReady {
		s.mu.Unlock()
		s.peers.Remove(remote, conn)
		conn.Close()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info().Str("peer", remote).Int("peers", s.peers.Count()).Msg("peer joined")
	s.emit(events.Event{Type: events.PeerJoin, PeerID: remote})

	go s.recvLoop(conn)
}

// recvLoop pumps inbound frames from one connection into the dispatcher
// until the connection dies, then settles the close.
func (s *Session) recvLoop(conn transport.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteID()
	for {
		frame, err := conn.Recv()
		if err != nil {
			s.logger.Debug().Err(err).Str("peer", remote).Msg("connection closed")
			break
		}

		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			s.logger.Warn().Err(err).Str("peer", remote).Msg("discarding malformed envelope")
			continue
		}
		s.dispatch(env, remote)
	}

	conn.Close()
	s.settleClose(conn)
}

// settleClose updates session state after a connection died and fires the
// matching lifecycle event. Connections already displaced or cleared by
// teardown fire nothing.
func (s *Session) settleClose(conn transport.Conn) {
	s.mu.Lock()
	role := s.role
	s.mu.Unlock()

	if role == RoleHost {
		remote := conn.RemoteID()
		if s.peers.Remove(remote, conn) {
			s.logger.Info().Str("peer", remote).Int("peers", s.peers.Count()).Msg("peer left")
			s.emit(events.Event{Type: events.PeerLeave, PeerID: remote})
		}
		return
	}

	s.mu.Lock()
	wasHost := s.hostConn == conn
	if wasHost {
		s.hostConn = nil
		s.hostID = ""
	}
	fire := wasHost && !s.hostDown
	if wasHost {
		s.hostDown = true
	}
	s.mu.Unlock()

	if fire {
		s.logger.Warn().Msg("host connection lost")
		s.emit(events.Event{Type: events.HostDisconnect})
	}
}

// emit delivers a lifecycle event under the dispatch lock so subscribers
// never run concurrently with message handlers or each other.
func (s *Session) emit(ev events.Event) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.bus.Emit(ev)
}

// Disconnect tears the session down: every connection is closed, the local
// identity is destroyed, handlers and lifecycle subscribers are cleared.
// Idempotent. Must not be called from within a lifecycle callback or
// message handler.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.st == stateClosed {
		s.mu.Unlock()
		return
	}
	role := s.role
	s.st = stateClosed
	identity := s.identity
	s.identity = nil
	s.localID = ""
	hostConn := s.hostConn
	s.hostConn = nil
	s.hostID = ""
	s.hostDown = true
	cancel := s.acceptCancel
	s.acceptCancel = nil
	s.handlers = make(map[protocol.MessageType]Handler)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, conn := range s.peers.Clear() {
		conn.Close()
	}
	if hostConn != nil {
		hostConn.Close()
	}
	if identity != nil {
		identity.Close()
	}

	s.wg.Wait()
	s.bus.Clear()

	s.logger.Info().Str("role", role.String()).Msg("session closed")
}

// Ready reports whether the session holds a live identity.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateReady
}

// Role returns the session role; zero before Open succeeds.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// LocalID returns the local channel identifier, or "" when not ready.
func (s *Session) LocalID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localID
}

// HostID returns the host's channel identifier as seen by a connected
// client, or "".
func (s *Session) HostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostID
}

// Peers lists the identifiers of currently registered connections. Only the
// host owns a registry; any other role or state answers nil.
func (s *Session) Peers() []string {
	s.mu.Lock()
	isHost := s.st == stateReady && s.role == RoleHost
	s.mu.Unlock()
	if !isHost {
		return nil
	}
	return s.peers.IDs()
}

// DropPeer closes the connection registered for peerID (host only). The
// close settles through the normal path, so the leave event still fires.
// Reports whether a connection was dropped.
func (s *Session) DropPeer(peerID string) bool {
	s.mu.Lock()
	isHost := s.st == stateReady && s.role == RoleHost
	s.mu.Unlock()
	if !isHost {
		return false
	}

	conn, ok := s.peers.Get(peerID)
	if !ok {
		return false
	}
	conn.Close()
	return true
}

// Events exposes the lifecycle bus for subscribing to join/leave/
// host-disconnect transitions.
func (s *Session) Events() *events.Bus {
	return s.bus
}
