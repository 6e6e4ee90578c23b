package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"trimgram/internal/analytics"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password required"})
		return
	}
	res, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "verification code required"})
		return
	}
	tok := token(r)
	if tok == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session token required"})
		return
	}
	res, err := s.auth.ResolveChallenge(r.Context(), tok, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	if tok == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session token required"})
		return
	}
	res, err := s.engine.Analyze(r.Context(), tok)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	if tok == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session token required"})
		return
	}
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id required"})
		return
	}
	out, err := s.executor.Unfollow(r.Context(), tok, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok := token(r)
	if tok == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session token required"})
		return
	}
	s.auth.Logout(tok)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type hourBucket struct {
		Hour    string         `json:"hour"`
		Actions map[string]int `json:"actions"`
	}
	resp := struct {
		ActiveSessions int          `json:"active_sessions"`
		Activity       []hourBucket `json:"activity"`
	}{ActiveSessions: s.store.Count()}

	if s.journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		actions, err := s.journal.Recent(ctx, 200)
		if err != nil && !errors.Is(err, context.Canceled) {
			writeError(w, err)
			return
		}
		buckets := analytics.HourlyActivity(actions)
		for _, k := range analytics.SortedBucketKeys(buckets) {
			resp.Activity = append(resp.Activity, hourBucket{Hour: k.Format("2006-01-02T15:00"), Actions: buckets[k]})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
