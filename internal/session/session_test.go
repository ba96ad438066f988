package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/session"
	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

func TestOpen_HostFirstClaimSucceeds(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(session.Options{Transport: ft, SettleDelay: time.Millisecond})
	defer sess.Disconnect()

	code, err := sess.Open(context.Background(), session.RoleHost, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(code) != session.DefaultCodeLength {
		t.Fatalf("code %q has length %d, want %d", code, len(code), session.DefaultCodeLength)
	}
	if !sess.Ready() {
		t.Fatal("session not ready after open")
	}
	if sess.Role() != session.RoleHost {
		t.Fatalf("role = %v, want host", sess.Role())
	}
	if want := session.DefaultCodePrefix + code; sess.LocalID() != want {
		t.Fatalf("local id = %q, want %q", sess.LocalID(), want)
	}

	want := []string{"create:1", "claim:1"}
	got := ft.events()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestOpen_CollisionRetryDestroysBeforeRecreate(t *testing.T) {
	ft := &fakeTransport{failClaims: 2}
	sess := session.New(session.Options{Transport: ft, SettleDelay: time.Millisecond})

	code, err := sess.Open(context.Background(), session.RoleHost, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(code) != session.DefaultCodeLength {
		t.Fatalf("final code %q has length %d, want %d", code, len(code), session.DefaultCodeLength)
	}

	// Two collisions means exactly three attempts, each failed identity
	// destroyed before the next create.
	want := []string{
		"create:1", "claim:1", "close:1",
		"create:2", "claim:2", "close:2",
		"create:3", "claim:3",
	}
	got := ft.events()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}

	sess.Disconnect()

	// Teardown closes the surviving identity; nothing is leaked.
	got = ft.events()
	if got[len(got)-1] != "close:3" {
		t.Fatalf("events after disconnect = %v, want trailing close:3", got)
	}
}

func TestOpen_RetryCapExhausted(t *testing.T) {
	ft := &fakeTransport{failClaims: 100}
	sess := session.New(session.Options{
		Transport:      ft,
		SettleDelay:    time.Millisecond,
		MaxCodeRetries: 2,
	})

	_, err := sess.Open(context.Background(), session.RoleHost, "")
	if !errors.Is(err, transport.ErrIdentifierTaken) {
		t.Fatalf("err = %v, want ErrIdentifierTaken", err)
	}
	if sess.Ready() {
		t.Fatal("session ready after exhausted retries")
	}

	// Cap of 2 retries allows 3 attempts, every identity destroyed.
	want := []string{
		"create:1", "claim:1", "close:1",
		"create:2", "claim:2", "close:2",
		"create:3", "claim:3", "close:3",
	}
	got := ft.events()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestOpen_TerminalClaimError(t *testing.T) {
	ft := &fakeTransport{claimErr: transport.ErrServerError}
	sess := session.New(session.Options{Transport: ft, SettleDelay: time.Millisecond})

	_, err := sess.Open(context.Background(), session.RoleHost, "")
	if !errors.Is(err, transport.ErrServerError) {
		t.Fatalf("err = %v, want ErrServerError", err)
	}

	// A non-collision failure is terminal: one attempt, identity destroyed.
	want := []string{"create:1", "claim:1", "close:1"}
	got := ft.events()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestOpen_ClientTakesEphemeralIdentity(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(session.Options{Transport: ft})
	defer sess.Disconnect()

	code, err := sess.Open(context.Background(), session.RoleClient, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if code != "" {
		t.Fatalf("client open returned code %q, want empty", code)
	}
	if sess.LocalID() != "anon-1" {
		t.Fatalf("local id = %q, want anon-1", sess.LocalID())
	}

	// No claim: clients never negotiate an invite code.
	for _, ev := range ft.events() {
		if strings.HasPrefix(ev, "claim:") {
			t.Fatalf("client open claimed an identifier: %v", ft.events())
		}
	}
}

func TestOpen_SecondOpenRejected(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(session.Options{Transport: ft})
	defer sess.Disconnect()

	if _, err := sess.Open(context.Background(), session.RoleClient, ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := sess.Open(context.Background(), session.RoleHost, ""); !errors.Is(err, session.ErrAlreadyOpen) {
		t.Fatalf("err = %v, want ErrAlreadyOpen", err)
	}
}

func TestConnectToHost_Timeout(t *testing.T) {
	ft := &fakeTransport{blockDial: true}
	sess := session.New(session.Options{
		Transport:      ft,
		ConnectTimeout: 30 * time.Millisecond,
	})
	defer sess.Disconnect()

	if _, err := sess.Open(context.Background(), session.RoleClient, ""); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := sess.ConnectToHost(context.Background(), "123456")
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if sess.HostID() != "" {
		t.Fatalf("host id = %q after failed connect, want empty", sess.HostID())
	}
}

func TestConnectToHost_CallerCancellation(t *testing.T) {
	ft := &fakeTransport{blockDial: true}
	sess := session.New(session.Options{Transport: ft})
	defer sess.Disconnect()

	if _, err := sess.Open(context.Background(), session.RoleClient, ""); err != nil {
		t.Fatalf("open: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Caller cancellation is not a timeout.
	err := sess.ConnectToHost(ctx, "123456")
	if err == nil || errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("err = %v, want cancellation, not ErrTimeout", err)
	}
}

func TestConnectToHost_RequiresClientRole(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(session.Options{Transport: ft, SettleDelay: time.Millisecond})
	defer sess.Disconnect()

	if _, err := sess.Open(context.Background(), session.RoleHost, ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sess.ConnectToHost(context.Background(), "123456"); !errors.Is(err, session.ErrWrongRole) {
		t.Fatalf("err = %v, want ErrWrongRole", err)
	}
}

func TestConnectToHost_BeforeOpen(t *testing.T) {
	sess := session.New(session.Options{Transport: &fakeTransport{}})
	if err := sess.ConnectToHost(context.Background(), "123456"); !errors.Is(err, session.ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestSendPrimitives_NoopOutsideRole(t *testing.T) {
	ft := &fakeTransport{blockDial: true}
	sess := session.New(session.Options{Transport: ft})
	defer sess.Disconnect()

	// Uninitialized session: all primitives drop silently.
	sess.SendToHost("ping", nil)
	sess.SendToPeer("someone", "ping", nil)
	sess.Broadcast("ping", nil)

	if _, err := sess.Open(context.Background(), session.RoleClient, ""); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Client role: host-side primitives drop, SendToHost without a host
	// connection drops.
	sess.SendToPeer("someone", "ping", nil)
	sess.Broadcast("ping", nil)
	sess.SendToHost("ping", nil)
}

func TestPeers_HostOnly(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(session.Options{Transport: ft})

	// Idle session: no registry to answer from.
	if got := sess.Peers(); got != nil {
		t.Fatalf("peers = %v before open, want nil", got)
	}

	if _, err := sess.Open(context.Background(), session.RoleClient, ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := sess.Peers(); got != nil {
		t.Fatalf("peers = %v for a client, want nil", got)
	}

	sess.Disconnect()
	if got := sess.Peers(); got != nil {
		t.Fatalf("peers = %v after disconnect, want nil", got)
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(session.Options{Transport: ft, SettleDelay: time.Millisecond})

	if _, err := sess.Open(context.Background(), session.RoleHost, ""); err != nil {
		t.Fatalf("open: %v", err)
	}

	sess.Disconnect()
	sess.Disconnect()

	if sess.Ready() {
		t.Fatal("session ready after disconnect")
	}

	closes := 0
	for _, ev := range ft.events() {
		if strings.HasPrefix(ev, "close:") {
			closes++
		}
	}
	if closes != 1 {
		t.Fatalf("identity closed %d times, want 1", closes)
	}
}
