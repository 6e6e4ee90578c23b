package model

import "time"

// Account represents a subset of platform user fields used by the tool.
type Account struct {
	ID            int64  `json:"user_id"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
	Verified      bool   `json:"is_verified"`
	Private       bool   `json:"is_private"`
}

// Post represents a subset of platform post fields used by the tool.
type Post struct {
	ID      string    `json:"post_id"`
	OwnerID int64     `json:"user_id"`
	TakenAt time.Time `json:"taken_at"`
}

// Comment is a single comment on a post. One entry per comment, so the
// same author may appear multiple times.
type Comment struct {
	AuthorID int64  `json:"user_id"`
	Text     string `json:"text"`
}

// NonFollower is a followed account that does not follow back, together
// with how much the session account has interacted with its content.
// LikesCount is the number of sampled posts the session account liked,
// CommentsCount the number of comments it authored across them.
type NonFollower struct {
	UserID        int64  `json:"user_id"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
	LikesCount    int    `json:"likes_count"`
	CommentsCount int    `json:"comments_count"`
	TotalScore    int    `json:"total_score"`
}

// AnalysisResult is the outcome of one analysis call. Results are ordered
// ascending by score, least-interacted-with first.
type AnalysisResult struct {
	TotalFollowing    int           `json:"total_following"`
	TotalFollowers    int           `json:"total_followers"`
	TotalNonFollowers int           `json:"total_non_followers"`
	NonFollowersShown int           `json:"non_followers_shown"`
	Results           []NonFollower `json:"results"`
}

// UnfollowOutcome reports a single unfollow attempt to the caller.
type UnfollowOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
