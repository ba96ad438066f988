package session_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/lpm24/SuperSmashTexty-sub002/internal/transport"
)

// fakeTransport scripts identity negotiation outcomes and records every
// create/claim/close as "create:N" style entries, in order.
type fakeTransport struct {
	mu         sync.Mutex
	seq        []string
	created    int
	failClaims int   // claims to reject with ErrIdentifierTaken before succeeding
	claimErr   error // terminal error returned by every claim when set
	blockDial  bool  // Dial blocks until the context is done
}

func (f *fakeTransport) CreateIdentity(ctx context.Context, _ transport.AssistConfig) (transport.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.created++
	n := f.created
	f.seq = append(f.seq, fmt.Sprintf("create:%d", n))
	f.mu.Unlock()

	return &fakeIdentity{t: f, n: n, id: fmt.Sprintf("anon-%d", n), done: make(chan struct{})}, nil
}

func (f *fakeTransport) record(ev string) {
	f.mu.Lock()
	f.seq = append(f.seq, ev)
	f.mu.Unlock()
}

func (f *fakeTransport) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.seq))
	copy(out, f.seq)
	return out
}

type fakeIdentity struct {
	t *fakeTransport
	n int

	mu sync.Mutex
	id string

	done      chan struct{}
	closeOnce sync.Once
}

func (fi *fakeIdentity) ID() string {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.id
}

func (fi *fakeIdentity) Claim(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fi.t.record(fmt.Sprintf("claim:%d", fi.n))

	fi.t.mu.Lock()
	if fi.t.claimErr != nil {
		err := fi.t.claimErr
		fi.t.mu.Unlock()
		return err
	}
	if fi.t.failClaims > 0 {
		fi.t.failClaims--
		fi.t.mu.Unlock()
		return transport.ErrIdentifierTaken
	}
	fi.t.mu.Unlock()

	fi.mu.Lock()
	fi.id = id
	fi.mu.Unlock()
	return nil
}

func (fi *fakeIdentity) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-fi.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (fi *fakeIdentity) Dial(ctx context.Context, remoteID string) (transport.Conn, error) {
	if fi.t.blockDial {
		select {
		case <-fi.done:
			return nil, transport.ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("dial %q: %w", remoteID, transport.ErrPeerUnreachable)
}

func (fi *fakeIdentity) Close() error {
	fi.closeOnce.Do(func() {
		fi.t.record(fmt.Sprintf("close:%d", fi.n))
		close(fi.done)
	})
	return nil
}
