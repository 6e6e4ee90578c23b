// Package api is the thin HTTP surface over the core operations. It maps
// tokens and JSON bodies in, and the core's error taxonomy to status
// codes out; no business logic lives here.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"trimgram/internal/analysis"
	"trimgram/internal/auth"
	"trimgram/internal/journal"
	"trimgram/internal/logging"
	"trimgram/internal/platform"
	"trimgram/internal/session"
	"trimgram/internal/unfollow"
)

type Server struct {
	auth     *auth.Service
	store    *session.Store
	engine   *analysis.Engine
	executor *unfollow.Executor
	journal  *journal.DB
}

func NewServer(authSvc *auth.Service, store *session.Store, engine *analysis.Engine, executor *unfollow.Executor, jr *journal.DB) *Server {
	return &Server{auth: authSvc, store: store, engine: engine, executor: executor, journal: jr}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/challenge", s.handleChallenge)
		r.Get("/analysis", s.handleAnalysis)
		r.Post("/unfollow", s.handleUnfollow)
		r.Post("/logout", s.handleLogout)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("http_request", map[string]any{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"ms":         time.Since(start).Milliseconds(),
		})
	})
}

// token extracts the session token from Authorization: Bearer or the
// X-Session-Token header.
func token(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.Header.Get("X-Session-Token")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired),
		errors.Is(err, platform.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrConflict), errors.Is(err, session.ErrChallengePending),
		errors.Is(err, auth.ErrNoChallenge):
		return http.StatusConflict
	case errors.Is(err, platform.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, platform.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, platform.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
