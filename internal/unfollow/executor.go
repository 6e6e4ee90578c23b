// Package unfollow executes single, user-initiated unfollow actions
// under the unfollow pacing class and the configured hourly and daily
// budgets. No attempt is ever retried automatically.
package unfollow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"trimgram/internal/journal"
	"trimgram/internal/logging"
	"trimgram/internal/metrics"
	"trimgram/internal/model"
	"trimgram/internal/pace"
	"trimgram/internal/platform"
	"trimgram/internal/session"
)

const actionType = "unfollow"

// Executor performs one unfollow per call. An Outcome with Success=false
// is the normal report for refused or failed attempts; errors are
// reserved for session problems.
type Executor struct {
	store      *session.Store
	pacer      *pace.Pacer
	journal    *journal.DB
	maxPerHour int
	maxPerDay  int
	now        func() time.Time
}

func New(store *session.Store, pacer *pace.Pacer, jr *journal.DB, maxPerHour, maxPerDay int) *Executor {
	return &Executor{
		store:      store,
		pacer:      pacer,
		journal:    jr,
		maxPerHour: maxPerHour,
		maxPerDay:  maxPerDay,
		now:        time.Now,
	}
}

// Unfollow removes the follow edge to targetID. Targets that are already
// not followed (or gone entirely) report success: the desired state
// holds either way, and a hard error would only push the user to retry
// an action the platform would read as spam.
func (x *Executor) Unfollow(ctx context.Context, token string, targetID int64) (model.UnfollowOutcome, error) {
	sess, err := x.store.Use(token)
	if err != nil {
		return model.UnfollowOutcome{}, err
	}
	if targetID == sess.AccountID {
		metrics.IncUnfollow("refused")
		return model.UnfollowOutcome{Success: false, Message: "cannot unfollow your own account"}, nil
	}
	if ok, err := x.withinBudget(ctx); err != nil {
		return model.UnfollowOutcome{}, err
	} else if !ok {
		metrics.IncUnfollow("budget")
		return model.UnfollowOutcome{
			Success: false,
			Message: "unfollow budget exhausted, try again later",
		}, nil
	}

	if err := x.pacer.Acquire(ctx, pace.ClassUnfollow); err != nil {
		return model.UnfollowOutcome{}, err
	}
	out := x.classify(sess.Client.Unfollow(ctx, targetID), targetID)
	x.record(ctx, targetID, out)
	return out, nil
}

func (x *Executor) classify(err error, targetID int64) model.UnfollowOutcome {
	switch {
	case err == nil:
		metrics.IncUnfollow("success")
		return model.UnfollowOutcome{Success: true, Message: fmt.Sprintf("unfollowed %d", targetID)}
	case errors.Is(err, platform.ErrNotFollowing), errors.Is(err, platform.ErrNotFound):
		// Already in the desired state.
		metrics.IncUnfollow("noop")
		return model.UnfollowOutcome{Success: true, Message: fmt.Sprintf("not following %d", targetID)}
	case errors.Is(err, platform.ErrRateLimited):
		metrics.IncUnfollow("rate_limited")
		return model.UnfollowOutcome{Success: false, Message: "the platform is throttling unfollows, wait and try again"}
	default:
		metrics.IncUnfollow("error")
		logging.Warn("unfollow_failed", map[string]any{"target": targetID, "error": err.Error()})
		return model.UnfollowOutcome{Success: false, Message: "unfollow failed: " + err.Error()}
	}
}

func (x *Executor) withinBudget(ctx context.Context) (bool, error) {
	if x.journal == nil || (x.maxPerHour <= 0 && x.maxPerDay <= 0) {
		return true, nil
	}
	now := x.now().UTC()
	if x.maxPerHour > 0 {
		startHour := now.Truncate(time.Hour)
		n, err := x.journal.CountWithin(ctx, startHour, startHour.Add(time.Hour), actionType)
		if err != nil {
			return false, err
		}
		if n >= x.maxPerHour {
			return false, nil
		}
	}
	if x.maxPerDay > 0 {
		startDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		n, err := x.journal.CountWithin(ctx, startDay, startDay.Add(24*time.Hour), actionType)
		if err != nil {
			return false, err
		}
		if n >= x.maxPerDay {
			return false, nil
		}
	}
	return true, nil
}

func (x *Executor) record(ctx context.Context, targetID int64, out model.UnfollowOutcome) {
	if x.journal == nil {
		return
	}
	result := "failed"
	if out.Success {
		result = "ok"
	}
	if err := x.journal.Record(ctx, x.now().UTC(), actionType, strconv.FormatInt(targetID, 10), result); err != nil {
		logging.Error("journal_record_failed", map[string]any{"error": err.Error()})
	}
}
