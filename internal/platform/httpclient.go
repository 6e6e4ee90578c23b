package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"trimgram/internal/metrics"
	"trimgram/internal/model"
)

// API talks to the platform's private web API. It implements
// Authenticator; successful logins return a *HTTPClient bound to the
// authenticated account through its own cookie jar.
type API struct {
	baseURL     string
	userAgent   string
	timeout     time.Duration
	maxAttempts int
	baseBackoff time.Duration
}

func NewAPI(baseURL, userAgent string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &API{
		baseURL:     strings.TrimRight(baseURL, "/"),
		userAgent:   userAgent,
		timeout:     timeout,
		maxAttempts: getEnvInt("TRIMGRAM_API_MAX_ATTEMPTS", 4),
		baseBackoff: time.Duration(getEnvInt("TRIMGRAM_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

func (a *API) newBoundClient() *HTTPClient {
	jar, _ := cookiejar.New(nil)
	return &HTTPClient{
		api:        a,
		httpClient: &http.Client{Timeout: a.timeout, Jar: jar},
	}
}

func (a *API) Login(ctx context.Context, username, password string) (Client, error) {
	c := a.newBoundClient()
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := c.postForm(ctx, "/accounts/login/", form)
	if err != nil {
		return nil, &UpstreamError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("login: %w", ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return nil, &UpstreamError{Op: "login", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var raw struct {
		Status            string `json:"status"`
		Message           string `json:"message"`
		TwoFactorRequired bool   `json:"two_factor_required"`
		TwoFactorInfo     struct {
			Identifier string `json:"two_factor_identifier"`
		} `json:"two_factor_info"`
		LoggedInUser struct {
			PK       int64  `json:"pk"`
			Username string `json:"username"`
		} `json:"logged_in_user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &UpstreamError{Op: "login", Err: err}
	}
	if raw.TwoFactorRequired {
		return nil, &ChallengeError{Ref: raw.TwoFactorInfo.Identifier}
	}
	if resp.StatusCode >= 400 || raw.Status != "ok" {
		return nil, fmt.Errorf("login: %w", ErrBadCredentials)
	}
	c.accountID = raw.LoggedInUser.PK
	c.username = raw.LoggedInUser.Username
	return c, nil
}

func (a *API) ResolveChallenge(ctx context.Context, ref, code string) (Client, error) {
	c := a.newBoundClient()
	form := url.Values{"two_factor_identifier": {ref}, "verification_code": {code}}
	resp, err := c.postForm(ctx, "/accounts/two_factor_login/", form)
	if err != nil {
		return nil, &UpstreamError{Op: "two_factor_login", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("two_factor_login: %w", ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return nil, &UpstreamError{Op: "two_factor_login", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var raw struct {
		Status       string `json:"status"`
		LoggedInUser struct {
			PK       int64  `json:"pk"`
			Username string `json:"username"`
		} `json:"logged_in_user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &UpstreamError{Op: "two_factor_login", Err: err}
	}
	if resp.StatusCode >= 400 || raw.Status != "ok" {
		return nil, fmt.Errorf("two_factor_login: %w", ErrBadCredentials)
	}
	c.accountID = raw.LoggedInUser.PK
	c.username = raw.LoggedInUser.Username
	return c, nil
}

// HTTPClient is an authenticated handle whose cookie jar carries the
// platform session. All read calls retry transient failures; Unfollow
// never retries, a duplicate unfollow must not be issued behind the
// caller's back.
type HTTPClient struct {
	api        *API
	httpClient *http.Client
	accountID  int64
	username   string
}

func (c *HTTPClient) AccountID() int64 { return c.accountID }
func (c *HTTPClient) Username() string { return c.username }

func (c *HTTPClient) Following(ctx context.Context) ([]model.Account, error) {
	return c.pagedUsers(ctx, fmt.Sprintf("/friendships/%d/following/", c.accountID))
}

func (c *HTTPClient) Followers(ctx context.Context) ([]model.Account, error) {
	return c.pagedUsers(ctx, fmt.Sprintf("/friendships/%d/followers/", c.accountID))
}

func (c *HTTPClient) pagedUsers(ctx context.Context, path string) ([]model.Account, error) {
	var out []model.Account
	maxID := ""
	for {
		u := path + "?count=200"
		if maxID != "" {
			u += "&max_id=" + url.QueryEscape(maxID)
		}
		resp, err := c.getWithRetry(ctx, u)
		if err != nil {
			return nil, err
		}
		var raw struct {
			Users []struct {
				PK            int64  `json:"pk"`
				Username      string `json:"username"`
				FullName      string `json:"full_name"`
				ProfilePicURL string `json:"profile_pic_url"`
				IsVerified    bool   `json:"is_verified"`
				IsPrivate     bool   `json:"is_private"`
			} `json:"users"`
			NextMaxID string `json:"next_max_id"`
		}
		err = json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if err != nil {
			return nil, &UpstreamError{Op: "list users", Err: err}
		}
		for _, u := range raw.Users {
			out = append(out, model.Account{
				ID:            u.PK,
				Username:      u.Username,
				FullName:      u.FullName,
				ProfilePicURL: u.ProfilePicURL,
				Verified:      u.IsVerified,
				Private:       u.IsPrivate,
			})
		}
		if raw.NextMaxID == "" {
			return out, nil
		}
		maxID = raw.NextMaxID
	}
}

func (c *HTTPClient) RecentPosts(ctx context.Context, userID int64, limit int) ([]model.Post, error) {
	u := fmt.Sprintf("/feed/user/%d/?count=%d", userID, clamp(limit, 1, 50))
	resp, err := c.getWithRetry(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Items []struct {
			PK      string `json:"pk"`
			UserPK  int64  `json:"user_pk"`
			TakenAt int64  `json:"taken_at"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &UpstreamError{Op: "feed", Err: err}
	}
	out := make([]model.Post, 0, len(raw.Items))
	for _, it := range raw.Items {
		out = append(out, model.Post{ID: it.PK, OwnerID: it.UserPK, TakenAt: time.Unix(it.TakenAt, 0).UTC()})
	}
	return out, nil
}

func (c *HTTPClient) Likers(ctx context.Context, postID string) ([]int64, error) {
	resp, err := c.getWithRetry(ctx, fmt.Sprintf("/media/%s/likers/", url.PathEscape(postID)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Users []struct {
			PK int64 `json:"pk"`
		} `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &UpstreamError{Op: "likers", Err: err}
	}
	out := make([]int64, 0, len(raw.Users))
	for _, u := range raw.Users {
		out = append(out, u.PK)
	}
	return out, nil
}

func (c *HTTPClient) Comments(ctx context.Context, postID string) ([]model.Comment, error) {
	resp, err := c.getWithRetry(ctx, fmt.Sprintf("/media/%s/comments/", url.PathEscape(postID)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Comments []struct {
			UserPK int64  `json:"user_pk"`
			Text   string `json:"text"`
		} `json:"comments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &UpstreamError{Op: "comments", Err: err}
	}
	out := make([]model.Comment, 0, len(raw.Comments))
	for _, cm := range raw.Comments {
		out = append(out, model.Comment{AuthorID: cm.UserPK, Text: cm.Text})
	}
	return out, nil
}

func (c *HTTPClient) Unfollow(ctx context.Context, targetID int64) error {
	// Single attempt on purpose. A retry here could double-execute an
	// action the platform already applied.
	form := url.Values{"user_id": {strconv.FormatInt(targetID, 10)}}
	resp, err := c.postForm(ctx, fmt.Sprintf("/friendships/destroy/%d/", targetID), form)
	if err != nil {
		return &UpstreamError{Op: "unfollow", Err: err}
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("unfollow: %w", ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("unfollow: %w", ErrNotFound)
	case resp.StatusCode >= 400:
		return &UpstreamError{Op: "unfollow", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	var raw struct {
		Status           string `json:"status"`
		FriendshipStatus struct {
			Following bool `json:"following"`
		} `json:"friendship_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return &UpstreamError{Op: "unfollow", Err: err}
	}
	if raw.Status != "ok" {
		return &UpstreamError{Op: "unfollow", Err: fmt.Errorf("status %q", raw.Status)}
	}
	return nil
}

func (c *HTTPClient) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.decorate(req)
	return c.httpClient.Do(req)
}

func (c *HTTPClient) getWithRetry(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req)
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	case resp.StatusCode >= 400:
		code := resp.StatusCode
		resp.Body.Close()
		return nil, &UpstreamError{Op: path, Err: fmt.Errorf("status %d", code)}
	}
	return resp, nil
}

func (c *HTTPClient) decorate(req *http.Request) {
	if c.api.userAgent != "" {
		req.Header.Set("User-Agent", c.api.userAgent)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.api.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.api.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				if attempt == c.api.maxAttempts {
					if resp.StatusCode == http.StatusTooManyRequests {
						return nil, fmt.Errorf("%s: %w", req.URL.Path, ErrRateLimited)
					}
					return nil, &UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("status %d", resp.StatusCode)}
				}
				metrics.IncAPIRetry(req.URL.Path)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		if attempt == c.api.maxAttempts {
			break
		}
		metrics.IncAPIRetry(req.URL.Path)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, &UpstreamError{Op: req.URL.Path, Err: fmt.Errorf("request failed after %d attempts: %v", c.api.maxAttempts, lastErr)}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
