// Package platform defines the narrow contracts the core uses to talk to
// the remote platform, plus the error taxonomy for upstream failures.
// The concrete HTTP client lives here too; everything else in the repo
// depends only on the interfaces so tests can substitute fixtures.
package platform

import (
	"context"
	"errors"
	"fmt"

	"trimgram/internal/model"
)

var (
	// ErrBadCredentials means the login was rejected outright.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrChallengeRequired means the platform wants a secondary
	// verification code before the login completes.
	ErrChallengeRequired = errors.New("challenge required")
	// ErrRateLimited means the platform throttled the call.
	ErrRateLimited = errors.New("rate limited by platform")
	// ErrNotFound means the referenced user or post does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotFollowing means an unfollow targeted an account that is not
	// currently followed.
	ErrNotFollowing = errors.New("not following")
	// ErrUpstream covers transient remote failures, including timeouts.
	ErrUpstream = errors.New("upstream error")
)

// ChallengeError carries the opaque reference needed to finish a pending
// verification challenge. It unwraps to ErrChallengeRequired.
type ChallengeError struct {
	Ref string
}

func (e *ChallengeError) Error() string { return "challenge required" }
func (e *ChallengeError) Unwrap() error { return ErrChallengeRequired }

// UpstreamError wraps a transient failure with the operation that hit it.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// GraphReader lists follow edges for the authenticated account. Both
// methods return accounts in the order the platform yields them; callers
// rely on that order being stable within a call.
type GraphReader interface {
	Following(ctx context.Context) ([]model.Account, error)
	Followers(ctx context.Context) ([]model.Account, error)
}

// PostReader fetches a user's recent posts and per-post engagement.
type PostReader interface {
	RecentPosts(ctx context.Context, userID int64, limit int) ([]model.Post, error)
	Likers(ctx context.Context, postID string) ([]int64, error)
	Comments(ctx context.Context, postID string) ([]model.Comment, error)
}

// Unfollower removes the follow edge to the target account.
type Unfollower interface {
	Unfollow(ctx context.Context, targetID int64) error
}

// Client is an authenticated handle bound to one account. The session
// store owns it for the session's lifetime; services borrow it per call.
type Client interface {
	GraphReader
	PostReader
	Unfollower
	AccountID() int64
	Username() string
}

// Authenticator produces authenticated clients. Login fails with
// *ChallengeError when the platform demands secondary verification; the
// returned reference is later passed to ResolveChallenge with the code.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Client, error)
	ResolveChallenge(ctx context.Context, ref, code string) (Client, error)
}
