package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

// gatedConn parks the first RemoteID call until the gate opens, holding the
// admission path at a chosen point.
type gatedConn struct {
	remote  string
	entered chan struct{}
	gate    chan struct{}

	gateOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func newGatedConn(remote string) *gatedConn {
	return &gatedConn{
		remote:  remote,
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *gatedConn) RemoteID() string {
	c.gateOnce.Do(func() {
		close(c.entered)
		<-c.gate
	})
	return c.remote
}

func (c *gatedConn) Send([]byte) error { return nil }

func (c *gatedConn) Recv() ([]byte, error) {
	<-c.done
	return nil, transport.ErrClosed
}

func (c *gatedConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *gatedConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// oneConnTransport hands out a single prepared connection on the first
// Accept, then blocks like an idle listener.
type oneConnTransport struct {
	conn transport.Conn
}

func (t *oneConnTransport) CreateIdentity(context.Context, transport.AssistConfig) (transport.Identity, error) {
	return &oneConnIdentity{conn: t.conn, done: make(chan struct{})}, nil
}

type oneConnIdentity struct {
	mu     sync.Mutex
	conn   transport.Conn
	handed bool

	done      chan struct{}
	closeOnce sync.Once
}

func (i *oneConnIdentity) ID() string { return "smashtexty-123456" }

func (i *oneConnIdentity) Claim(context.Context, string) error { return nil }

func (i *oneConnIdentity) Accept(ctx context.Context) (transport.Conn, error) {
	i.mu.Lock()
	if !i.handed {
		i.handed = true
		conn := i.conn
		i.mu.Unlock()
		return conn, nil
	}
	i.mu.Unlock()

	select {
	case <-i.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (i *oneConnIdentity) Dial(context.Context, string) (transport.Conn, error) {
	return nil, transport.ErrPeerUnreachable
}

func (i *oneConnIdentity) Close() error {
	i.closeOnce.Do(func() { close(i.done) })
	return nil
}

func TestDisconnect_DuringPeerAdmission(t *testing.T) {
	conn := newGatedConn("anon-late")
	sess := session.New(session.Options{Transport: &oneConnTransport{conn: conn}})

	if _, err := sess.Open(context.Background(), session.RoleHost, "123456"); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Wait for the accept path to park inside admission, after its state
	// check but before the registry insert.
	select {
	case <-conn.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never reached admission")
	}

	done := make(chan struct{})
	go func() {
		sess.Disconnect()
		close(done)
	}()

	// Let teardown clear the registry, then release the admission.
	deadline := time.Now().Add(2 * time.Second)
	for sess.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("session never left the ready state")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(conn.gate)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect blocked on a connection admitted during teardown")
	}

	if !conn.closed() {
		t.Fatal("connection admitted during teardown was left open")
	}
	if peers := sess.Peers(); len(peers) != 0 {
		t.Fatalf("registry holds %v after teardown", peers)
	}
}
