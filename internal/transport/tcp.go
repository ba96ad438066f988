package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/protocol"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/rendezvous"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/util"
)

const (
	defaultRegistrationTTL   = 60 * time.Second
	defaultHeartbeatInterval = 20 * time.Second

	// helloTimeout bounds the open handshake on an accepted connection.
	helloTimeout = 10 * time.Second
)

// TCPOptions configures the TCP transport.
type TCPOptions struct {
	// ListenAddress is where identities accept peers. Empty or port 0
	// binds an ephemeral port.
	ListenAddress string

	// AdvertiseAddress overrides the address registered with the
	// rendezvous service. Empty means the listener's own address.
	AdvertiseAddress string
}

// TCPTransport implements Transport over TCP, using the rendezvous service
// for address discovery. Dialing a name resolves it to an address, connects,
// and sends a hello frame carrying the dialer's identity so the accepting
// side learns who arrived.
type TCPTransport struct {
	opts TCPOptions
}

// NewTCPTransport creates a TCP transport.
func NewTCPTransport(opts TCPOptions) *TCPTransport {
	return &TCPTransport{opts: opts}
}

// CreateIdentity opens a listener under a fresh ephemeral name.
func (t *TCPTransport) CreateIdentity(ctx context.Context, assist AssistConfig) (Identity, error) {
	listenAddr := t.opts.ListenAddress
	if listenAddr == "" {
		listenAddr = "0.0.0.0:0"
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listenAddr, err)
	}

	ttl := assist.RegistrationTTL
	if ttl <= 0 {
		ttl = defaultRegistrationTTL
	}
	heartbeat := assist.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	suffix, err := randomSuffix()
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("generate identity suffix: %w", err)
	}

	ident := &tcpIdentity{
		client:    rendezvous.NewClient(assist.Endpoints),
		ttl:       ttl,
		heartbeat: heartbeat,
		ln:        ln,
		advertise: t.opts.AdvertiseAddress,
		id:        "anon-" + suffix,
		accept:    make(chan Conn, 8),
		done:      make(chan struct{}),
		logger:    util.ComponentLogger("tcp-transport"),
	}
	if ident.advertise == "" {
		ident.advertise = ln.Addr().String()
	}

	go ident.acceptLoop()
	return ident, nil
}

func randomSuffix() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

type tcpIdentity struct {
	client    *rendezvous.Client
	ttl       time.Duration
	heartbeat time.Duration
	ln        net.Listener
	advertise string
	logger    zerolog.Logger

	accept    chan Conn
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	id      string
	claimed bool
}

func (t *tcpIdentity) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

func (t *tcpIdentity) Claim(ctx context.Context, id string) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	if err := t.client.Register(ctx, id, t.advertise, t.ttl); err != nil {
		return classifyRendezvousErr(fmt.Errorf("claim %q: %w", id, err))
	}

	t.mu.Lock()
	t.id = id
	t.claimed = true
	t.mu.Unlock()

	t.logger.Info().Str("id", id).Str("address", t.advertise).Msg("identity claimed")
	go t.heartbeatLoop()
	return nil
}

func (t *tcpIdentity) acceptLoop() {
	for {
		raw, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				t.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go t.handshake(raw)
	}
}

// handshake reads the hello frame identifying the dialer, then hands the
// connection to Accept.
func (t *tcpIdentity) handshake(raw net.Conn) {
	raw.SetReadDeadline(time.Now().Add(helloTimeout))
	hello, err := protocol.ReadFrame(raw)
	if err != nil || len(hello) == 0 {
		t.logger.Warn().Err(err).Str("remote", raw.RemoteAddr().String()).Msg("hello handshake failed")
		raw.Close()
		return
	}
	raw.SetReadDeadline(time.Time{})

	conn := &tcpConn{conn: raw, remote: string(hello)}
	select {
	case t.accept <- conn:
	case <-t.done:
		raw.Close()
	}
}

func (t *tcpIdentity) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-t.accept:
		return conn, nil
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *tcpIdentity) Dial(ctx context.Context, remoteID string) (Conn, error) {
	address, err := t.client.Resolve(ctx, remoteID)
	if err != nil {
		return nil, classifyRendezvousErr(fmt.Errorf("dial %q: %w", remoteID, err))
	}

	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("dial %q: %w", remoteID, ErrTimeout)
		}
		return nil, fmt.Errorf("dial %q at %s: %w", remoteID, address, ErrPeerUnreachable)
	}

	if deadline, ok := ctx.Deadline(); ok {
		raw.SetWriteDeadline(deadline)
	}
	if err := protocol.WriteFrame(raw, []byte(t.ID())); err != nil {
		raw.Close()
		return nil, fmt.Errorf("dial %q: send hello: %w", remoteID, err)
	}
	raw.SetWriteDeadline(time.Time{})

	return &tcpConn{conn: raw, remote: remoteID}, nil
}

func (t *tcpIdentity) heartbeatLoop() {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := t.client.Heartbeat(ctx, t.ID())
			cancel()
			if err != nil {
				t.logger.Warn().Err(err).Msg("registration heartbeat failed")
			}
		}
	}
}

func (t *tcpIdentity) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.ln.Close()

		t.mu.Lock()
		claimed, id := t.claimed, t.id
		t.mu.Unlock()

		if claimed {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := t.client.Unregister(ctx, id); err != nil {
				t.logger.Debug().Err(err).Str("id", id).Msg("unregister failed")
			}
		}
		t.logger.Info().Str("id", id).Msg("identity closed")
	})
	return nil
}

// classifyRendezvousErr maps rendezvous client errors onto the transport
// error taxonomy, preserving the original chain for diagnostics.
func classifyRendezvousErr(err error) error {
	switch {
	case errors.Is(err, rendezvous.ErrTaken):
		return fmt.Errorf("%w: %v", ErrIdentifierTaken, err)
	case errors.Is(err, rendezvous.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	case errors.Is(err, rendezvous.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	case errors.Is(err, rendezvous.ErrServer):
		return fmt.Errorf("%w: %v", ErrServerError, err)
	default:
		return err
	}
}

type tcpConn struct {
	conn   net.Conn
	remote string

	readMu    sync.Mutex
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *tcpConn) RemoteID() string { return c.remote }

func (c *tcpConn) Send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return protocol.WriteFrame(c.conn, frame)
}

func (c *tcpConn) Recv() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return protocol.ReadFrame(c.conn)
}

func (c *tcpConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}
