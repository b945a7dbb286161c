package rest

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/tonaly/internal/app/materializer"
	"github.com/osa030/tonaly/internal/domain/chat"
	"github.com/osa030/tonaly/internal/domain/playlist"
	"github.com/osa030/tonaly/internal/domain/track"
	"github.com/osa030/tonaly/internal/infra/spotify"
)

type fakeMaterializer struct {
	calls  atomic.Int32
	result *playlist.Result
	err    error

	gotProposal playlist.Proposal
	gotToken    string
	gotUser     string
	ctxErr      error
}

func (f *fakeMaterializer) Materialize(ctx context.Context, p playlist.Proposal, accessToken, userID string) (*playlist.Result, error) {
	f.calls.Add(1)
	f.gotProposal, f.gotToken, f.gotUser = p, accessToken, userID
	f.ctxErr = ctx.Err()
	return f.result, f.err
}

type fakeAssistant struct {
	deltas  []string
	failAt  int // index of the delta replaced by an error, -1 for none
	err     error
	history []chat.Message
}

func (f *fakeAssistant) Reply(ctx context.Context, history []chat.Message) (iter.Seq2[string, error], error) {
	f.history = history
	if f.err != nil && f.failAt < 0 {
		return nil, f.err
	}
	return func(yield func(string, error) bool) {
		for i, d := range f.deltas {
			if i == f.failAt {
				yield("", errors.New("upstream closed"))
				return
			}
			if !yield(d, nil) {
				return
			}
		}
		if f.failAt == len(f.deltas) {
			yield("", errors.New("upstream closed"))
		}
	}, nil
}

type fakeAuth struct {
	session *spotify.Session
	err     error
}

func (f *fakeAuth) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(ctx context.Context, code string) (*spotify.Session, error) {
	return f.session, f.err
}

func newTestServer(m Materializer, a Assistant, auth Authenticator) http.Handler {
	if auth == nil {
		auth = &fakeAuth{}
	}
	return NewServer(m, a, auth, Config{}).Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

const validCreateBody = `{
	"playlistData": {
		"playlistName": "Chill",
		"tracks": [
			{"title": "Weightless", "artist": "Marconi Union"},
			{"title": "Nope", "artist": "Nobody"}
		]
	},
	"accessToken": "tok",
	"userId": "u1"
}`

func TestCreatePlaylist_Success(t *testing.T) {
	m := &fakeMaterializer{result: &playlist.Result{
		PlaylistID:      "pl1",
		PlaylistName:    "Chill",
		ExternalURL:     "https://open.spotify.com/playlist/pl1",
		ResolvedCount:   1,
		UnresolvedCount: 1,
		Unresolved:      []track.Track{{Title: "Nope", Artist: "Nobody"}},
	}}

	rec := post(t, newTestServer(m, nil, nil), "/api/playlists", validCreateBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{
		"id":             "pl1",
		"name":           "Chill",
		"url":            "https://open.spotify.com/playlist/pl1",
		"tracksAdded":    float64(1),
		"tracksNotFound": float64(1),
	}, body["playlist"])
	assert.Equal(t, []any{map[string]any{"title": "Nope", "artist": "Nobody"}}, body["notFoundTracks"])

	assert.Equal(t, int32(1), m.calls.Load())
	assert.Equal(t, "Chill", m.gotProposal.Name)
	assert.Len(t, m.gotProposal.Tracks, 2)
	assert.Equal(t, "tok", m.gotToken)
	assert.Equal(t, "u1", m.gotUser)
}

func TestCreatePlaylist_LegacyRoute(t *testing.T) {
	m := &fakeMaterializer{result: &playlist.Result{PlaylistID: "pl1", ResolvedCount: 2}}

	rec := post(t, newTestServer(m, nil, nil), "/api/create-playlist", validCreateBody)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{}, body["notFoundTracks"])
}

func TestCreatePlaylist_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing access token",
			body: `{"playlistData":{"playlistName":"Chill","tracks":[{"title":"a","artist":"b"}]},"userId":"u1"}`,
		},
		{
			name: "missing user id",
			body: `{"playlistData":{"playlistName":"Chill","tracks":[{"title":"a","artist":"b"}]},"accessToken":"tok"}`,
		},
		{
			name: "missing playlist data",
			body: `{"accessToken":"tok","userId":"u1"}`,
		},
		{
			name: "missing tracks",
			body: `{"playlistData":{"playlistName":"Chill"},"accessToken":"tok","userId":"u1"}`,
		},
		{
			name: "missing playlist name",
			body: `{"playlistData":{"tracks":[]},"accessToken":"tok","userId":"u1"}`,
		},
		{
			name: "malformed json",
			body: `{"playlistData":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMaterializer{}

			rec := post(t, newTestServer(m, nil, nil), "/api/playlists", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Missing required fields", decode(t, rec)["error"])
			assert.Zero(t, m.calls.Load(), "materializer must not be invoked")
		})
	}
}

func TestCreatePlaylist_NoMatches(t *testing.T) {
	m := &fakeMaterializer{err: &materializer.NoMatchesError{NotFound: []track.Track{
		{Title: "Nope", Artist: "Nobody"},
		{Title: "Nah", Artist: "Noone"},
	}}}

	rec := post(t, newTestServer(m, nil, nil), "/api/playlists", validCreateBody)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["error"])
	assert.Len(t, body["notFoundTracks"], 2)
}

func TestCreatePlaylist_CreationFails(t *testing.T) {
	upstream := &spotify.APIError{Status: 403, Message: "Insufficient client scope"}
	m := &fakeMaterializer{err: &materializer.PlaylistCreationError{Cause: upstream, Details: upstream.Payload()}}

	rec := post(t, newTestServer(m, nil, nil), "/api/playlists", validCreateBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to create playlist", body["error"])
	assert.Equal(t, map[string]any{"status": float64(403), "message": "Insufficient client scope"}, body["details"])
}

func TestCreatePlaylist_AttachmentFails(t *testing.T) {
	upstream := &spotify.APIError{Status: 502, Message: "Bad gateway"}
	m := &fakeMaterializer{err: &materializer.TrackAttachmentError{
		Playlist: playlist.Created{ID: "pl1", Name: "Chill", URL: "https://open.spotify.com/playlist/pl1"},
		Cause:    upstream,
		Details:  upstream.Payload(),
	}}

	rec := post(t, newTestServer(m, nil, nil), "/api/playlists", validCreateBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to add tracks to playlist", body["error"])

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": "pl1", "url": "https://open.spotify.com/playlist/pl1"}, details["playlist"])
	assert.Equal(t, map[string]any{"status": float64(502), "message": "Bad gateway"}, details["upstream"])
}

func TestCreatePlaylist_UnexpectedError(t *testing.T) {
	m := &fakeMaterializer{err: errors.New("context deadline exceeded")}

	rec := post(t, newTestServer(m, nil, nil), "/api/playlists", validCreateBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.NotContains(t, body, "details")
}

func TestCreatePlaylist_IgnoresClientCancellation(t *testing.T) {
	m := &fakeMaterializer{result: &playlist.Result{PlaylistID: "pl1", ResolvedCount: 1}}
	h := newTestServer(m, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/api/playlists", strings.NewReader(validCreateBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, m.ctxErr)
}

func TestChat_Streams(t *testing.T) {
	a := &fakeAssistant{deltas: []string{"Hel", "lo\n", `"quoted"`}, failAt: -1}

	rec := post(t, newTestServer(&fakeMaterializer{}, a, nil), "/api/chat",
		`{"messages":[{"role":"user","content":"something calm"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "v1", rec.Header().Get("X-Vercel-AI-Data-Stream"))
	assert.Equal(t, "0:\"Hel\"\n0:\"lo\\n\"\n0:\"\\\"quoted\\\"\"\n", rec.Body.String())
	assert.True(t, rec.Flushed)

	require.Len(t, a.history, 1)
	assert.Equal(t, chat.RoleUser, a.history[0].Role)
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name       string
		assistant  Assistant
		body       string
		wantStatus int
	}{
		{
			name:       "assistant not configured",
			assistant:  nil,
			body:       `{"messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "empty messages",
			assistant:  &fakeAssistant{failAt: -1},
			body:       `{"messages":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown role",
			assistant:  &fakeAssistant{failAt: -1},
			body:       `{"messages":[{"role":"robot","content":"hi"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed json",
			assistant:  &fakeAssistant{failAt: -1},
			body:       `{"messages":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "reply cannot start",
			assistant:  &fakeAssistant{failAt: -1, err: errors.New("boom")},
			body:       `{"messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "completion fails before first delta",
			assistant:  &fakeAssistant{deltas: []string{"never"}, failAt: 0},
			body:       `{"messages":[{"role":"user","content":"hi"}]}`,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestServer(&fakeMaterializer{}, tt.assistant, nil), "/api/chat", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestChat_MidStreamErrorEndsStream(t *testing.T) {
	a := &fakeAssistant{deltas: []string{"Here", " is"}, failAt: 2}

	rec := post(t, newTestServer(&fakeMaterializer{}, a, nil), "/api/chat",
		`{"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0:\"Here\"\n0:\" is\"\n", rec.Body.String())
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spotify/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	authURL, ok := decode(t, rec)["authUrl"].(string)
	require.True(t, ok)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func callback(h http.Handler, query string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
	return rec
}

func TestCallback_Success(t *testing.T) {
	auth := &fakeAuth{session: &spotify.Session{AccessToken: "tok", UserID: "u1", DisplayName: "Yuki"}}
	h := newTestServer(&fakeMaterializer{}, nil, auth)

	state := login(t, h)
	rec := callback(h, "code=abc&state="+url.QueryEscape(state))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/", loc.Path)

	var user map[string]string
	require.NoError(t, json.Unmarshal([]byte(loc.Query().Get("spotify_user")), &user))
	assert.Equal(t, map[string]string{"accessToken": "tok", "id": "u1", "displayName": "Yuki"}, user)

	// states are single use
	rec = callback(h, "code=abc&state="+url.QueryEscape(state))
	assert.Equal(t, "/?error=state_mismatch", rec.Header().Get("Location"))
}

func TestCallback_Errors(t *testing.T) {
	tests := []struct {
		name      string
		auth      *fakeAuth
		query     func(state string) string
		wantError string
	}{
		{
			name:      "missing code",
			auth:      &fakeAuth{},
			query:     func(state string) string { return "error=access_denied&state=" + state },
			wantError: "no_code",
		},
		{
			name:      "unknown state",
			auth:      &fakeAuth{},
			query:     func(string) string { return "code=abc&state=forged" },
			wantError: "state_mismatch",
		},
		{
			name:      "token exchange fails",
			auth:      &fakeAuth{err: errors.Mark(errors.New("invalid_grant"), spotify.ErrTokenExchange)},
			query:     func(state string) string { return "code=abc&state=" + state },
			wantError: "token_error",
		},
		{
			name:      "profile fetch fails",
			auth:      &fakeAuth{err: &spotify.APIError{Status: 401, Message: "The access token expired"}},
			query:     func(state string) string { return "code=abc&state=" + state },
			wantError: "auth_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeMaterializer{}, nil, tt.auth)
			state := login(t, h)

			rec := callback(h, tt.query(url.QueryEscape(state)))

			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, "/?error="+tt.wantError, rec.Header().Get("Location"))
		})
	}
}

func TestStateStore_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newStateStore(10 * time.Minute)
	s.now = func() time.Time { return now }

	s.put("fresh")
	s.put("stale")
	assert.False(t, s.take(""))

	now = now.Add(5 * time.Minute)
	assert.True(t, s.take("fresh"))
	assert.False(t, s.take("fresh"))

	now = now.Add(6 * time.Minute)
	assert.False(t, s.take("stale"))
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Tonaly</h1>"), 0o600))

	h := NewServer(&fakeMaterializer{}, nil, &fakeAuth{}, Config{StaticDir: dir}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tonaly")

	// API routes win over the file server
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/spotify/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authUrl")
}
