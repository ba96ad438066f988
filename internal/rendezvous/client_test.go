package rendezvous

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func statusServer(t *testing.T, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ConflictIsAuthoritative(t *testing.T) {
	var secondHits atomic.Int64
	first := statusServer(t, http.StatusConflict, nil)
	second := statusServer(t, http.StatusCreated, &secondHits)

	client := NewClient([]string{first.URL, second.URL})
	err := client.Register(context.Background(), "smashtexty-123456", "10.0.0.5:4000", time.Minute)
	if !errors.Is(err, ErrTaken) {
		t.Fatalf("err = %v, want ErrTaken", err)
	}

	// A conflict answer stops the endpoint walk.
	if n := secondHits.Load(); n != 0 {
		t.Fatalf("fallback endpoint hit %d times after a conflict", n)
	}
}

func TestClient_NotFound(t *testing.T) {
	srv := statusServer(t, http.StatusNotFound, nil)

	client := NewClient([]string{srv.URL})
	if _, err := client.Resolve(context.Background(), "smashtexty-000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClient_FallsBackPastDeadEndpoint(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"address":"10.0.0.5:4000"}`))
	}))
	defer live.Close()

	client := NewClient([]string{dead.URL, live.URL})
	addr, err := client.Resolve(context.Background(), "smashtexty-123456")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if addr != "10.0.0.5:4000" {
		t.Fatalf("address = %q, want 10.0.0.5:4000", addr)
	}
}

func TestClient_ServerFaultTriesNext(t *testing.T) {
	faulty := statusServer(t, http.StatusInternalServerError, nil)
	healthy := statusServer(t, http.StatusOK, nil)

	client := NewClient([]string{faulty.URL, healthy.URL})
	if err := client.Heartbeat(context.Background(), "smashtexty-123456"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}

func TestClient_AllEndpointsFaulty(t *testing.T) {
	faulty := statusServer(t, http.StatusInternalServerError, nil)
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	// A real answer, even a fault, outranks plain unreachability.
	client := NewClient([]string{faulty.URL, dead.URL})
	err := client.Heartbeat(context.Background(), "smashtexty-123456")
	if !errors.Is(err, ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
}

func TestClient_AllEndpointsDead(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	dead.Close()

	client := NewClient([]string{dead.URL})
	err := client.Register(context.Background(), "smashtexty-123456", "10.0.0.5:4000", time.Minute)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	srv := statusServer(t, http.StatusOK, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient([]string{srv.URL})
	err := client.Heartbeat(ctx, "smashtexty-123456")
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want context cancellation", err)
	}
}
