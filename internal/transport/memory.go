package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryNetwork is an in-process implementation of Transport. All identities
// created from the same MemoryNetwork share one namespace, so a host and its
// clients can run inside a single process. Used by tests and local matches.
type MemoryNetwork struct {
	mu         sync.Mutex
	identities map[string]*memoryIdentity
	nextAnon   uint64
}

// NewMemoryNetwork creates an empty in-process channel namespace.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{identities: make(map[string]*memoryIdentity)}
}

// CreateIdentity allocates an identity under a fresh ephemeral name.
func (n *MemoryNetwork) CreateIdentity(ctx context.Context, assist AssistConfig) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextAnon++
	id := fmt.Sprintf("anon-%06d", n.nextAnon)

	ident := &memoryIdentity{
		net:    n,
		id:     id,
		accept: make(chan Conn, 8),
		done:   make(chan struct{}),
	}
	n.identities[id] = ident
	return ident, nil
}

func (n *MemoryNetwork) claim(ident *memoryIdentity, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if other, ok := n.identities[id]; ok && other != ident {
		return fmt.Errorf("claim %q: %w", id, ErrIdentifierTaken)
	}
	delete(n.identities, ident.id)
	ident.id = id
	n.identities[id] = ident
	return nil
}

func (n *MemoryNetwork) lookup(id string) (*memoryIdentity, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ident, ok := n.identities[id]
	return ident, ok
}

func (n *MemoryNetwork) release(ident *memoryIdentity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.identities[ident.id] == ident {
		delete(n.identities, ident.id)
	}
}

type memoryIdentity struct {
	net *MemoryNetwork

	mu sync.Mutex
	id string

	accept    chan Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (m *memoryIdentity) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

func (m *memoryIdentity) Claim(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.net.claim(m, id); err != nil {
		return err
	}
	m.id = id
	return nil
}

func (m *memoryIdentity) Accept(ctx context.Context) (Conn, error) {
	select {
	case conn := <-m.accept:
		return conn, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *memoryIdentity) Dial(ctx context.Context, remoteID string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remote, ok := m.net.lookup(remoteID)
	if !ok {
		return nil, fmt.Errorf("dial %q: %w", remoteID, ErrPeerUnreachable)
	}

	local, far := newMemoryConnPair(m.ID(), remote.ID())

	select {
	case remote.accept <- far:
	case <-remote.done:
		return nil, fmt.Errorf("dial %q: %w", remoteID, ErrPeerUnreachable)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return local, nil
}

func (m *memoryIdentity) Close() error {
	m.closeOnce.Do(func() {
		m.net.release(m)
		close(m.done)
	})
	return nil
}

// newMemoryConnPair builds the two ends of an in-process connection.
// localID/remoteID are as seen from the dialing side.
func newMemoryConnPair(localID, remoteID string) (*memoryConn, *memoryConn) {
	a := &memoryConn{remote: remoteID, inbound: make(chan []byte, 64), done: make(chan struct{})}
	b := &memoryConn{remote: localID, inbound: make(chan []byte, 64), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

type memoryConn struct {
	remote  string
	peer    *memoryConn
	inbound chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *memoryConn) RemoteID() string { return c.remote }

func (c *memoryConn) Send(frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	select {
	case <-c.done:
		return ErrClosed
	case <-c.peer.done:
		return fmt.Errorf("send: %w", ErrClosed)
	case c.peer.inbound <- buf:
		return nil
	}
}

func (c *memoryConn) Recv() ([]byte, error) {
	// Drain frames queued before the remote closed.
	select {
	case frame := <-c.inbound:
		return frame, nil
	default:
	}

	select {
	case frame := <-c.inbound:
		return frame, nil
	case <-c.done:
		return nil, ErrClosed
	case <-c.peer.done:
		return nil, io.EOF
	}
}

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
