// Package rendezvous implements the address-discovery service the TCP
// transport registers identities with, plus the client used to reach it.
// An identity maps an invite-code-derived name to a dialable address for a
// bounded, heartbeat-refreshed lifetime.
package rendezvous

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Errors surfaced by the store and the client.
var (
	// ErrTaken means the identifier is registered and unexpired.
	ErrTaken = errors.New("identifier taken")

	// ErrNotFound means the identifier has no live registration.
	ErrNotFound = errors.New("identifier not found")

	// ErrUnavailable means no configured endpoint could be reached.
	ErrUnavailable = errors.New("rendezvous unavailable")

	// ErrServer means the service answered with an infrastructure fault.
	ErrServer = errors.New("rendezvous server error")
)

// Store persists identity registrations in SQLite.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore opens or creates the registration database at the given path.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	// SQLite does not support concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("rendezvous database opened")
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id            TEXT PRIMARY KEY,
	address       TEXT NOT NULL,
	registered_at INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_identities_expires ON identities(expires_at);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Register claims id for address until now+ttl. An unexpired registration
// under another holder yields ErrTaken; an expired one is displaced.
func (s *Store) Register(id, address string, ttl time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	var expiresAt int64
	err := s.db.QueryRow("SELECT expires_at FROM identities WHERE id = ?", id).Scan(&expiresAt)
	switch {
	case err == nil:
		if expiresAt > now.Unix() {
			return time.Time{}, fmt.Errorf("register %q: %w", id, ErrTaken)
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return time.Time{}, fmt.Errorf("query registration %q: %w", id, err)
	}

	expiry := now.Add(ttl)
	_, err = s.db.Exec(`
INSERT INTO identities (id, address, registered_at, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET address = excluded.address,
                              registered_at = excluded.registered_at,
                              expires_at = excluded.expires_at`,
		id, address, now.Unix(), expiry.Unix())
	if err != nil {
		return time.Time{}, fmt.Errorf("insert registration %q: %w", id, err)
	}

	log.Debug().Str("id", id).Str("address", address).Time("expires", expiry).Msg("identity registered")
	return expiry, nil
}

// Heartbeat extends a live registration by ttl. Returns ErrNotFound when
// the registration is missing or already expired.
func (s *Store) Heartbeat(id string, ttl time.Duration) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expiry := now.Add(ttl)

	res, err := s.db.Exec("UPDATE identities SET expires_at = ? WHERE id = ? AND expires_at > ?",
		expiry.Unix(), id, now.Unix())
	if err != nil {
		return time.Time{}, fmt.Errorf("heartbeat %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return time.Time{}, fmt.Errorf("heartbeat %q: %w", id, ErrNotFound)
	}
	return expiry, nil
}

// Resolve returns the address registered for id, if unexpired.
func (s *Store) Resolve(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var address string
	err := s.db.QueryRow("SELECT address FROM identities WHERE id = ? AND expires_at > ?",
		id, time.Now().Unix()).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", id, err)
	}
	return address, nil
}

// Remove deletes a registration. Removing an absent id is not an error.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM identities WHERE id = ?", id); err != nil {
		return fmt.Errorf("remove %q: %w", id, err)
	}
	return nil
}

// Sweep purges expired registrations and reports how many were removed.
func (s *Store) Sweep(now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM identities WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
