package session_test

import (
	"testing"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

// stubConn is a transport.Conn that only carries identity.
type stubConn struct {
	remote string
}

func (c *stubConn) RemoteID() string        { return c.remote }
func (c *stubConn) Send(frame []byte) error { return nil }
func (c *stubConn) Recv() ([]byte, error)   { return nil, transport.ErrClosed }
func (c *stubConn) Close() error            { return nil }

func TestRegistry_AtMostOnePerIdentifier(t *testing.T) {
	reg := session.NewRegistry()

	first := &stubConn{remote: "peer-a"}
	second := &stubConn{remote: "peer-a"}

	if displaced := reg.Register("peer-a", first); displaced != nil {
		t.Fatalf("fresh register displaced %v", displaced)
	}
	if displaced := reg.Register("peer-a", second); displaced != first {
		t.Fatalf("re-register displaced %v, want the first connection", displaced)
	}
	if reg.Count() != 1 {
		t.Fatalf("count = %d, want 1", reg.Count())
	}

	got, ok := reg.Get("peer-a")
	if !ok || got != second {
		t.Fatalf("Get returned %v, want the second connection", got)
	}
}

func TestRegistry_RemoveIsConnScoped(t *testing.T) {
	reg := session.NewRegistry()

	first := &stubConn{remote: "peer-a"}
	second := &stubConn{remote: "peer-a"}
	reg.Register("peer-a", first)
	reg.Register("peer-a", second)

	// The displaced connection's late close must not evict its replacement.
	if reg.Remove("peer-a", first) {
		t.Fatal("removed entry using the displaced connection")
	}
	if _, ok := reg.Get("peer-a"); !ok {
		t.Fatal("replacement connection evicted")
	}

	if !reg.Remove("peer-a", second) {
		t.Fatal("failed to remove the live connection")
	}
	if reg.Count() != 0 {
		t.Fatalf("count = %d, want 0", reg.Count())
	}
}

func TestRegistry_ReRegisterSameConn(t *testing.T) {
	reg := session.NewRegistry()

	conn := &stubConn{remote: "peer-a"}
	reg.Register("peer-a", conn)
	if displaced := reg.Register("peer-a", conn); displaced != nil {
		t.Fatalf("re-registering the same connection displaced %v", displaced)
	}
}

func TestRegistry_Clear(t *testing.T) {
	reg := session.NewRegistry()
	reg.Register("a", &stubConn{remote: "a"})
	reg.Register("b", &stubConn{remote: "b"})

	conns := reg.Clear()
	if len(conns) != 2 {
		t.Fatalf("clear returned %d connections, want 2", len(conns))
	}
	if reg.Count() != 0 {
		t.Fatalf("count = %d after clear, want 0", reg.Count())
	}

	ids := reg.IDs()
	if len(ids) != 0 {
		t.Fatalf("ids = %v after clear, want none", ids)
	}
}
