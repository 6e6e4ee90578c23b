package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"trimgram/internal/model"
)

type stubClient struct {
	id   int64
	name string
}

func (c stubClient) AccountID() int64 { return c.id }
func (c stubClient) Username() string { return c.name }
func (c stubClient) Following(ctx context.Context) ([]model.Account, error) { return nil, nil }
func (c stubClient) Followers(ctx context.Context) ([]model.Account, error) { return nil, nil }
func (c stubClient) RecentPosts(ctx context.Context, userID int64, limit int) ([]model.Post, error) {
	return nil, nil
}
func (c stubClient) Likers(ctx context.Context, postID string) ([]int64, error) { return nil, nil }
func (c stubClient) Comments(ctx context.Context, postID string) ([]model.Comment, error) {
	return nil, nil
}
func (c stubClient) Unfollow(ctx context.Context, targetID int64) error { return nil }

// fakeClock lets tests move time forward explicitly.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration, single bool) (*Store, *fakeClock) {
	st := NewStore(ttl, single)
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	st.now = clk.now
	return st, clk
}

func TestCreateAndUse(t *testing.T) {
	st, _ := newTestStore(30*time.Minute, true)
	token, err := st.Create(stubClient{id: 7, name: "me"})
	if err != nil {
		t.Fatal(err)
	}
	if len(token) < 40 {
		t.Fatalf("token too short: %q", token)
	}
	s, err := st.Use(token)
	if err != nil {
		t.Fatal(err)
	}
	if s.AccountID != 7 || s.Username != "me" {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestUnknownToken(t *testing.T) {
	st, _ := newTestStore(time.Minute, true)
	if _, err := st.Use("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiryIsLazyAndIdempotent(t *testing.T) {
	st, clk := newTestStore(1800*time.Second, true)
	token, _ := st.Create(stubClient{id: 1})
	clk.advance(1801 * time.Second)
	if _, err := st.Use(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Entry was removed; a second access reports not-found.
	if _, err := st.Use(token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after removal, got %v", err)
	}
}

func TestTouchResetsExpiryClock(t *testing.T) {
	st, clk := newTestStore(1800*time.Second, true)
	token, _ := st.Create(stubClient{id: 1})
	clk.advance(1799 * time.Second)
	if _, err := st.Use(token); err != nil {
		t.Fatalf("access at TTL-1s should succeed: %v", err)
	}
	clk.advance(1799 * time.Second)
	if _, err := st.Use(token); err != nil {
		t.Fatalf("access TTL-1s after touch should succeed: %v", err)
	}
	clk.advance(1801 * time.Second)
	if _, err := st.Use(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired after idle gap, got %v", err)
	}
}

func TestSingleSessionConflict(t *testing.T) {
	st, clk := newTestStore(time.Hour, true)
	if _, err := st.Create(stubClient{id: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(stubClient{id: 2}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// An expired session no longer blocks a new login.
	clk.advance(2 * time.Hour)
	if _, err := st.Create(stubClient{id: 2}); err != nil {
		t.Fatalf("expected create after expiry, got %v", err)
	}
}

func TestMultiSessionPolicy(t *testing.T) {
	st, _ := newTestStore(time.Hour, false)
	a, err := st.Create(stubClient{id: 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Create(stubClient{id: 2})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("tokens must be independent")
	}
	if st.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", st.Count())
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	st, _ := newTestStore(time.Hour, true)
	token, _ := st.Create(stubClient{id: 1})
	st.Destroy(token)
	st.Destroy(token)
	st.Destroy("never-existed")
	if _, err := st.Use(token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingSessionRejectedForUse(t *testing.T) {
	st, _ := newTestStore(time.Hour, true)
	token, err := st.CreatePending("challenge-ref")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Use(token); !errors.Is(err, ErrChallengePending) {
		t.Fatalf("expected ErrChallengePending, got %v", err)
	}
	if err := st.Resolve(token, stubClient{id: 9, name: "me"}); err != nil {
		t.Fatal(err)
	}
	s, err := st.Use(token)
	if err != nil {
		t.Fatal(err)
	}
	if s.AccountID != 9 {
		t.Fatalf("expected upgraded session, got %+v", s)
	}
	// Resolving twice is an error, the challenge is gone.
	if err := st.Resolve(token, stubClient{id: 9}); err == nil {
		t.Fatal("expected error resolving a live session")
	}
}

func TestPendingCountsTowardSingleSession(t *testing.T) {
	st, _ := newTestStore(time.Hour, true)
	if _, err := st.CreatePending("ref"); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(stubClient{id: 1}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict while challenge pending, got %v", err)
	}
}

func TestCountSweepsExpired(t *testing.T) {
	st, clk := newTestStore(time.Minute, false)
	_, _ = st.Create(stubClient{id: 1})
	_, _ = st.Create(stubClient{id: 2})
	clk.advance(2 * time.Minute)
	if n := st.Count(); n != 0 {
		t.Fatalf("expected 0 live sessions, got %d", n)
	}
}
