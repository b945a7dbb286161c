// Package rest provides the HTTP JSON API consumed by the web front-end and the CLI.
package rest

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tonaly/internal/domain/chat"
	"github.com/osa030/tonaly/internal/domain/playlist"
	"github.com/osa030/tonaly/internal/infra/spotify"
)

// Materializer creates playlists from proposals.
type Materializer interface {
	Materialize(ctx context.Context, p playlist.Proposal, accessToken, userID string) (*playlist.Result, error)
}

// Assistant streams the playlist assistant's replies.
type Assistant interface {
	Reply(ctx context.Context, history []chat.Message) (iter.Seq2[string, error], error)
}

// Authenticator runs the user authorization flow.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*spotify.Session, error)
}

// Config represents HTTP API configuration.
type Config struct {
	// StaticDir is served at / when set.
	StaticDir string
	// StateTTL bounds how long an authorization state stays valid.
	StateTTL time.Duration
}

// Server serves the HTTP API.
type Server struct {
	materializer Materializer
	assistant    Assistant // nil when the text-generation service is not configured
	auth         Authenticator
	states       *stateStore
	validate     *validator.Validate
	config       Config
}

// NewServer creates a new Server. assistant may be nil, in which case chat requests are answered with 503.
func NewServer(m Materializer, assistant Assistant, auth Authenticator, cfg Config) *Server {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}

	return &Server{
		materializer: m,
		assistant:    assistant,
		auth:         auth,
		states:       newStateStore(cfg.StateTTL),
		validate:     validator.New(),
		config:       cfg,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/playlists", s.handleCreatePlaylist)
	mux.HandleFunc("POST /api/create-playlist", s.handleCreatePlaylist)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/spotify/login", s.handleLogin)
	mux.HandleFunc("GET /callback", s.handleCallback)

	if s.config.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.config.StaticDir)))
	}

	return logRequests(mux)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("failed to write response: error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets streamed responses pass through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		zlog.Debug().Msgf("%s %s: status=%d elapsed=%s", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
