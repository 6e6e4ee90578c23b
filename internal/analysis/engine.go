// Package analysis computes the ranked non-follower list: who the
// session account follows without being followed back, ordered by how
// little the account owner has engaged with their content.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trimgram/internal/logging"
	"trimgram/internal/metrics"
	"trimgram/internal/model"
	"trimgram/internal/pace"
	"trimgram/internal/platform"
	"trimgram/internal/session"
)

// Engine runs the analysis pipeline. All remote reads go through the
// shared pacer's fetch class.
type Engine struct {
	store           *session.Store
	pacer           *pace.Pacer
	postsPerAccount int
	maxResults      int
	retryBackoff    time.Duration
}

func New(store *session.Store, pacer *pace.Pacer, postsPerAccount, maxResults int) *Engine {
	if postsPerAccount <= 0 {
		postsPerAccount = 12
	}
	if maxResults <= 0 {
		maxResults = 100
	}
	return &Engine{
		store:           store,
		pacer:           pacer,
		postsPerAccount: postsPerAccount,
		maxResults:      maxResults,
		retryBackoff:    2 * time.Second,
	}
}

// Analyze fetches both follow edges, diffs them, scores every
// non-follower, and returns the lowest-scored subset capped at maxResults.
// A single account's fetch failure never fails the call; that account
// scores zero. Session validity is re-checked before each account's
// batch, so a session expiring mid-run aborts instead of finishing stale.
func (e *Engine) Analyze(ctx context.Context, token string) (model.AnalysisResult, error) {
	var res model.AnalysisResult
	sess, err := e.store.Use(token)
	if err != nil {
		return res, err
	}
	client := sess.Client
	myID := sess.AccountID

	metrics.AnalysisRuns.Inc()
	start := time.Now()

	if err := e.pacer.Acquire(ctx, pace.ClassFetch); err != nil {
		return res, err
	}
	following, err := client.Following(ctx)
	if err != nil {
		metrics.AnalysisErrors.Inc()
		return res, fmt.Errorf("list following: %w", err)
	}
	if err := e.pacer.Acquire(ctx, pace.ClassFetch); err != nil {
		return res, err
	}
	followers, err := client.Followers(ctx)
	if err != nil {
		metrics.AnalysisErrors.Inc()
		return res, fmt.Errorf("list followers: %w", err)
	}

	followerIDs := make(map[int64]struct{}, len(followers))
	for _, a := range followers {
		followerIDs[a.ID] = struct{}{}
	}
	// Keep fetch order; it is the tiebreak for equal scores.
	var nonFollowers []model.Account
	for _, a := range following {
		if _, ok := followerIDs[a.ID]; !ok {
			nonFollowers = append(nonFollowers, a)
		}
	}

	res.TotalFollowing = len(following)
	res.TotalFollowers = len(followers)
	res.TotalNonFollowers = len(nonFollowers)
	logging.Info("analysis_sets", map[string]any{
		"account_id":    myID,
		"following":     len(following),
		"followers":     len(followers),
		"non_followers": len(nonFollowers),
	})

	scored := make([]model.NonFollower, 0, len(nonFollowers))
	for _, acct := range nonFollowers {
		// The session can expire or be logged out while we grind
		// through paced fetches; stop rather than finish stale.
		if _, err := e.store.Use(token); err != nil {
			metrics.AnalysisErrors.Inc()
			return res, err
		}
		likes, comments, err := e.scoreAccount(ctx, client, myID, acct)
		if err != nil {
			metrics.AnalysisErrors.Inc()
			return res, err
		}
		scored = append(scored, model.NonFollower{
			UserID:        acct.ID,
			Username:      acct.Username,
			FullName:      acct.FullName,
			ProfilePicURL: acct.ProfilePicURL,
			LikesCount:    likes,
			CommentsCount: comments,
			TotalScore:    likes + comments,
		})
	}
	metrics.AccountsScored.Add(float64(len(scored)))

	// Ascending, least interaction first. Stable sort keeps fetch order
	// among equal scores.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].TotalScore < scored[j].TotalScore })
	if len(scored) > e.maxResults {
		scored = scored[:e.maxResults]
	}
	res.Results = scored
	res.NonFollowersShown = len(scored)

	metrics.ObserveAnalysisDuration(start)
	return res, nil
}

// scoreAccount counts the session account's likes and comments across the
// target's recent posts. Transient upstream failures get one retry after
// a short backoff; a second failure scores the account zero and the
// analysis moves on. Only cancellation propagates as an error.
func (e *Engine) scoreAccount(ctx context.Context, client platform.Client, myID int64, acct model.Account) (int, int, error) {
	likes, comments, err := e.fetchEngagement(ctx, client, myID, acct.ID)
	if err == nil {
		return likes, comments, nil
	}
	if ctx.Err() != nil {
		return 0, 0, ctx.Err()
	}
	select {
	case <-time.After(e.retryBackoff):
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}
	likes, comments, err = e.fetchEngagement(ctx, client, myID, acct.ID)
	if err == nil {
		return likes, comments, nil
	}
	if ctx.Err() != nil {
		return 0, 0, ctx.Err()
	}
	metrics.ScoreFetchFailures.Inc()
	logging.Warn("score_fetch_failed", map[string]any{
		"username": acct.Username,
		"error":    err.Error(),
	})
	return 0, 0, nil
}

func (e *Engine) fetchEngagement(ctx context.Context, client platform.Client, myID, targetID int64) (int, int, error) {
	if err := e.pacer.Acquire(ctx, pace.ClassFetch); err != nil {
		return 0, 0, err
	}
	posts, err := client.RecentPosts(ctx, targetID, e.postsPerAccount)
	if err != nil {
		return 0, 0, err
	}
	likes, comments := 0, 0
	for _, p := range posts {
		if err := e.pacer.Acquire(ctx, pace.ClassFetch); err != nil {
			return 0, 0, err
		}
		likers, err := client.Likers(ctx, p.ID)
		if err != nil {
			return 0, 0, err
		}
		for _, id := range likers {
			if id == myID {
				likes++
				break
			}
		}
		if err := e.pacer.Acquire(ctx, pace.ClassFetch); err != nil {
			return 0, 0, err
		}
		cmts, err := client.Comments(ctx, p.ID)
		if err != nil {
			return 0, 0, err
		}
		for _, cm := range cmts {
			if cm.AuthorID == myID {
				comments++
			}
		}
	}
	return likes, comments, nil
}
