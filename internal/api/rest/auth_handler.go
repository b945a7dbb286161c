package rest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/infra/spotify"
)

type loginResponse struct {
	AuthURL string `json:"authUrl"`
}

// handleLogin returns the consent page URL for a fresh authorization state.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	s.states.put(state)

	writeJSON(w, http.StatusOK, loginResponse{AuthURL: s.auth.AuthURL(state)})
}

// handleCallback completes the authorization and hands the session to the front-end through the redirect URL.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	code := q.Get("code")
	if code == "" {
		zlog.Info().Msgf("authorization callback without code: error=%s", q.Get("error"))
		redirectWithError(w, r, "no_code")
		return
	}

	if !s.states.take(q.Get("state")) {
		zlog.Warn().Msg("authorization callback with unknown state")
		redirectWithError(w, r, "state_mismatch")
		return
	}

	session, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		if errors.Is(err, spotify.ErrTokenExchange) {
			zlog.Error().Msgf("failed to exchange authorization code: error=%v", err)
			redirectWithError(w, r, "token_error")
			return
		}
		zlog.Error().Msgf("failed to fetch user profile: error=%v", err)
		redirectWithError(w, r, "auth_failed")
		return
	}

	payload, err := json.Marshal(session)
	if err != nil {
		redirectWithError(w, r, "auth_failed")
		return
	}

	zlog.Info().Msgf("user authorized: id=%s", session.UserID)
	http.Redirect(w, r, "/?spotify_user="+url.QueryEscape(string(payload)), http.StatusFound)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(code), http.StatusFound)
}

// stateStore remembers issued authorization states until they are used or expire.
type stateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[string]time.Time
	now    func() time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{
		ttl:    ttl,
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *stateStore) put(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, expires := range s.states {
		if now.After(expires) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(s.ttl)
}

// take consumes state, reporting whether it was issued and is still valid.
func (s *stateStore) take(state string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return !s.now().After(expires)
}
