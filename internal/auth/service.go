// Package auth drives the login, challenge, and logout flows against the
// platform authenticator and the session store.
package auth

import (
	"context"
	"errors"
	"fmt"

	"trimgram/internal/logging"
	"trimgram/internal/metrics"
	"trimgram/internal/platform"
	"trimgram/internal/session"
)

// ErrNoChallenge means a challenge resolution was attempted on a session
// that is not waiting for one.
var ErrNoChallenge = errors.New("no pending challenge for session")

// Result is what a completed or pending login hands back to the caller.
// When ChallengeRequired is set the token references a pending session
// that only ResolveChallenge can activate.
type Result struct {
	Token             string `json:"session_token"`
	AccountID         int64  `json:"user_id,omitempty"`
	Username          string `json:"username,omitempty"`
	ChallengeRequired bool   `json:"challenge_required,omitempty"`
}

type Service struct {
	authn platform.Authenticator
	store *session.Store
}

func New(authn platform.Authenticator, store *session.Store) *Service {
	return &Service{authn: authn, store: store}
}

// Login authenticates against the platform and creates a session. A
// challenge demand from the platform is not a failure: it produces a
// pending session whose token the caller sends back with the code.
// Credentials pass through to the platform and are never logged.
func (s *Service) Login(ctx context.Context, username, password string) (Result, error) {
	client, err := s.authn.Login(ctx, username, password)
	if err != nil {
		var ch *platform.ChallengeError
		if errors.As(err, &ch) {
			token, cerr := s.store.CreatePending(ch.Ref)
			if cerr != nil {
				return Result{}, cerr
			}
			metrics.IncLogin("challenge")
			logging.Info("login_challenge", map[string]any{"username": username})
			return Result{Token: token, ChallengeRequired: true}, nil
		}
		metrics.IncLogin("failed")
		return Result{}, fmt.Errorf("login: %w", err)
	}
	token, err := s.store.Create(client)
	if err != nil {
		return Result{}, err
	}
	metrics.IncLogin("ok")
	logging.Info("login_ok", map[string]any{"username": client.Username()})
	return Result{Token: token, AccountID: client.AccountID(), Username: client.Username()}, nil
}

// ResolveChallenge completes a pending login with the verification code.
// The session keeps its token and becomes usable for analysis and
// unfollow on success.
func (s *Service) ResolveChallenge(ctx context.Context, token, code string) (Result, error) {
	sess, err := s.store.Get(token)
	if err != nil {
		return Result{}, err
	}
	if sess.PendingRef == "" {
		return Result{}, ErrNoChallenge
	}
	client, err := s.authn.ResolveChallenge(ctx, sess.PendingRef, code)
	if err != nil {
		metrics.IncLogin("challenge_failed")
		return Result{}, fmt.Errorf("resolve challenge: %w", err)
	}
	if err := s.store.Resolve(token, client); err != nil {
		return Result{}, err
	}
	metrics.IncLogin("challenge_ok")
	logging.Info("challenge_resolved", map[string]any{"username": client.Username()})
	return Result{Token: token, AccountID: client.AccountID(), Username: client.Username()}, nil
}

// Logout destroys the session. Unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.store.Destroy(token)
}
