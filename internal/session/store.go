// Package session holds the only mutable shared state in the process: a
// map of live sessions keyed by opaque token. Sessions hold the
// authenticated platform client and nothing else; they are never written
// anywhere outside process memory.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"trimgram/internal/logging"
	"trimgram/internal/platform"
)

var (
	// ErrNotFound means the token is unknown; the caller must log in again.
	ErrNotFound = errors.New("session not found")
	// ErrExpired means the session sat idle past its TTL and was removed.
	ErrExpired = errors.New("session expired")
	// ErrConflict means single-session policy is on and a live session exists.
	ErrConflict = errors.New("another session is already active")
	// ErrChallengePending means the session is awaiting secondary
	// verification and cannot run authorized operations yet.
	ErrChallengePending = errors.New("challenge resolution pending")
)

// Session is an authenticated (or challenge-pending) login. The store
// exclusively owns it; callers must not retain the pointer across calls.
type Session struct {
	Token      string
	AccountID  int64
	Username   string
	Client     platform.Client
	PendingRef string // non-empty while awaiting a verification code
	CreatedAt  time.Time
	LastUsedAt time.Time
}

func (s *Session) pending() bool { return s.PendingRef != "" }

// Store keeps sessions in memory with an inactivity TTL. Expiry is
// enforced lazily on access; StartSweeper adds an optional background
// sweep so idle entries do not linger until the next lookup.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	single   bool
	now      func() time.Time
}

func NewStore(ttl time.Duration, single bool) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		single:   single,
		now:      time.Now,
	}
}

// Create stores a new authenticated session and returns its token. Under
// single-session policy it fails with ErrConflict while any live session
// (including a pending one) exists.
func (st *Store) Create(client platform.Client) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.checkConflictLocked(); err != nil {
		return "", err
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := st.now()
	st.sessions[token] = &Session{
		Token:      token,
		AccountID:  client.AccountID(),
		Username:   client.Username(),
		Client:     client,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	return token, nil
}

// CreatePending stores a challenge-pending login keyed by a fresh token.
// The session cannot be used until Resolve upgrades it.
func (st *Store) CreatePending(ref string) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.checkConflictLocked(); err != nil {
		return "", err
	}
	token, err := newToken()
	if err != nil {
		return "", err
	}
	now := st.now()
	st.sessions[token] = &Session{
		Token:      token,
		PendingRef: ref,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	return token, nil
}

func (st *Store) checkConflictLocked() error {
	if !st.single {
		return nil
	}
	now := st.now()
	for token, s := range st.sessions {
		if now.Sub(s.LastUsedAt) > st.ttl {
			delete(st.sessions, token)
			continue
		}
		return ErrConflict
	}
	return nil
}

// Get returns the session for token without refreshing its TTL clock.
// Expired entries are removed as a side effect; a second lookup of the
// same token reports ErrNotFound.
func (st *Store) Get(token string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.getLocked(token)
}

func (st *Store) getLocked(token string) (*Session, error) {
	s, ok := st.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	if st.now().Sub(s.LastUsedAt) > st.ttl {
		delete(st.sessions, token)
		return nil, ErrExpired
	}
	return s, nil
}

// Touch refreshes the session's inactivity window.
func (st *Store) Touch(token string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.getLocked(token)
	if err != nil {
		return err
	}
	s.LastUsedAt = st.now()
	return nil
}

// Use is the access path for authorized operations: it validates the
// token, rejects challenge-pending sessions, and refreshes the TTL clock.
func (st *Store) Use(token string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.getLocked(token)
	if err != nil {
		return nil, err
	}
	if s.pending() {
		return nil, ErrChallengePending
	}
	s.LastUsedAt = st.now()
	return s, nil
}

// Resolve upgrades a pending session in place once the challenge code has
// been accepted. The token does not change.
func (st *Store) Resolve(token string, client platform.Client) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, err := st.getLocked(token)
	if err != nil {
		return err
	}
	if !s.pending() {
		return fmt.Errorf("session %w: no pending challenge", ErrNotFound)
	}
	s.PendingRef = ""
	s.Client = client
	s.AccountID = client.AccountID()
	s.Username = client.Username()
	s.LastUsedAt = st.now()
	return nil
}

// Destroy removes the session. Destroying an absent token is a no-op.
func (st *Store) Destroy(token string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, token)
}

// Count returns the number of live sessions, sweeping expired ones first.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()
	return len(st.sessions)
}

func (st *Store) sweepLocked() {
	now := st.now()
	for token, s := range st.sessions {
		if now.Sub(s.LastUsedAt) > st.ttl {
			delete(st.sessions, token)
		}
	}
}

// StartSweeper removes idle-expired sessions on an interval until ctx is
// cancelled. Not required for correctness; lazy expiry already guards
// every access.
func (st *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st.mu.Lock()
				before := len(st.sessions)
				st.sweepLocked()
				swept := before - len(st.sessions)
				st.mu.Unlock()
				if swept > 0 {
					logging.Info("sessions_swept", map[string]any{"count": swept})
				}
			}
		}
	}()
}

// newToken returns 32 bytes from crypto/rand as base64url, 256 bits of
// entropy.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
