package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAPI(baseURL string) *API {
	a := NewAPI(baseURL, "trimgram-test", 5*time.Second)
	a.maxAttempts = 3
	a.baseBackoff = 5 * time.Millisecond
	return a
}

func fakePlatform(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch r.PostFormValue("username") {
		case "needs2fa":
			fmt.Fprint(w, `{"status":"fail","two_factor_required":true,"two_factor_info":{"two_factor_identifier":"ref-9"}}`)
		case "bad":
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":"fail","message":"bad_password"}`)
		default:
			fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":7,"username":"alice"}}`)
		}
	})
	mux.HandleFunc("/accounts/two_factor_login/", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostFormValue("verification_code") != "123456" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"status":"fail"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":8,"username":"needs2fa"}}`)
	})
	mux.HandleFunc("/friendships/7/following/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("max_id") == "" {
			fmt.Fprint(w, `{"users":[{"pk":1,"username":"a"},{"pk":2,"username":"b"}],"next_max_id":"page2"}`)
			return
		}
		fmt.Fprint(w, `{"users":[{"pk":3,"username":"c"}]}`)
	})
	mux.HandleFunc("/feed/user/3/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"pk":"p1","user_pk":3,"taken_at":1735732800}]}`)
	})
	mux.HandleFunc("/media/p1/likers/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"users":[{"pk":7},{"pk":9}]}`)
	})
	mux.HandleFunc("/media/p1/comments/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"comments":[{"user_pk":7,"text":"hi"},{"user_pk":7,"text":"again"}]}`)
	})
	mux.HandleFunc("/friendships/destroy/42/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","friendship_status":{"following":false}}`)
	})
	mux.HandleFunc("/friendships/destroy/43/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	return httptest.NewServer(mux)
}

func login(t *testing.T, api *API) Client {
	t.Helper()
	client, err := api.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestLoginSuccess(t *testing.T) {
	ts := fakePlatform(t)
	defer ts.Close()
	client := login(t, newTestAPI(ts.URL))
	if client.AccountID() != 7 || client.Username() != "alice" {
		t.Fatalf("unexpected identity: %d %s", client.AccountID(), client.Username())
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ts := fakePlatform(t)
	defer ts.Close()
	_, err := newTestAPI(ts.URL).Login(context.Background(), "bad", "pw")
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestLoginChallengeCarriesRef(t *testing.T) {
	ts := fakePlatform(t)
	defer ts.Close()
	api := newTestAPI(ts.URL)
	_, err := api.Login(context.Background(), "needs2fa", "pw")
	var ch *ChallengeError
	if !errors.As(err, &ch) {
		t.Fatalf("expected ChallengeError, got %v", err)
	}
	if ch.Ref != "ref-9" {
		t.Fatalf("expected ref-9, got %q", ch.Ref)
	}
	if !errors.Is(err, ErrChallengeRequired) {
		t.Fatal("ChallengeError must unwrap to ErrChallengeRequired")
	}
	client, err := api.ResolveChallenge(context.Background(), ch.Ref, "123456")
	if err != nil {
		t.Fatal(err)
	}
	if client.AccountID() != 8 {
		t.Fatalf("unexpected account: %d", client.AccountID())
	}
}

func TestFollowingFollowsPagination(t *testing.T) {
	ts := fakePlatform(t)
	defer ts.Close()
	client := login(t, newTestAPI(ts.URL))
	got, err := client.Following(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 users across pages, got %d", len(got))
	}
	if got[0].ID != 1 || got[2].ID != 3 {
		t.Fatalf("page order broken: %+v", got)
	}
}

func TestEngagementReads(t *testing.T) {
	ts := fakePlatform(t)
	defer ts.Close()
	client := login(t, newTestAPI(ts.URL))
	ctx := context.Background()

	posts, err := client.RecentPosts(ctx, 3, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].ID != "p1" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
	likers, err := client.Likers(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(likers) != 2 || likers[0] != 7 {
		t.Fatalf("unexpected likers: %v", likers)
	}
	comments, err := client.Comments(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 || comments[1].AuthorID != 7 {
		t.Fatalf("unexpected comments: %+v", comments)
	}
}

func TestUnfollowMapping(t *testing.T) {
	ts := fakePlatform(t)
	defer ts.Close()
	client := login(t, newTestAPI(ts.URL))
	ctx := context.Background()

	if err := client.Unfollow(ctx, 42); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := client.Unfollow(ctx, 43); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":7,"username":"alice"}}`)
	})
	mux.HandleFunc("/friendships/7/following/", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"users":[{"pk":1,"username":"a"}]}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := login(t, newTestAPI(ts.URL))
	got, err := client.Following(context.Background())
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if len(got) != 1 || attempts < 2 {
		t.Fatalf("expected 2 attempts and 1 user, got %d attempts %d users", attempts, len(got))
	}
}

func TestUnfollowNeverRetries(t *testing.T) {
	attempts := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/login/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"ok","logged_in_user":{"pk":7,"username":"alice"}}`)
	})
	mux.HandleFunc("/friendships/destroy/42/", func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := login(t, newTestAPI(ts.URL))
	if err := client.Unfollow(context.Background(), 42); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("unfollow must be a single attempt, got %d", attempts)
	}
}
