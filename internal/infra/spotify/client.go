// Package spotify provides a client for the Spotify Web API.
//
// The client holds no credential of its own: every call is authorized with the
// bearer token of the user on whose behalf it runs.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/osa030/tonaly/internal/domain/playlist"
)

// DefaultBaseURL is the Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1/"

// maxItemsPerRequest is the Spotify limit for one add-items request.
const maxItemsPerRequest = 100

// Client is a Spotify API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config represents Spotify client configuration.
type Config struct {
	BaseURL string
	// HTTPClient is the base transport. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// New creates a new Spotify client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// APIError is the error body returned by Spotify for a non-success status.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify: %s (status %d)", e.Message, e.Status)
}

// Payload returns the upstream error body for forwarding to callers.
func (e *APIError) Payload() any {
	return e
}

// forToken returns a library client authorized with the given bearer token.
func (c *Client) forToken(ctx context.Context, accessToken string) *spotify.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
	return spotify.New(oauth2.NewClient(ctx, src), spotify.WithBaseURL(c.baseURL))
}

// SearchTrack searches the catalog for query and returns the URI of the best match.
// found is false when the catalog returned no track.
func (c *Client) SearchTrack(ctx context.Context, accessToken, query string) (uri string, found bool, err error) {
	if query == "" {
		return "", false, errors.New("search query is required")
	}

	result, err := c.forToken(ctx, accessToken).Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return "", false, errors.Wrap(convertError(err), "failed to search")
	}

	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return "", false, nil
	}

	return string(result.Tracks.Tracks[0].URI), true, nil
}

// CreatePlaylist creates a new non-collaborative playlist owned by userID.
func (c *Client) CreatePlaylist(ctx context.Context, accessToken, userID, name, description string, public bool) (*playlist.Created, error) {
	p, err := c.forToken(ctx, accessToken).CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return nil, errors.Wrap(convertError(err), "failed to create playlist")
	}

	url := p.ExternalURLs["spotify"]
	if url == "" {
		url = GetPlaylistURL(string(p.ID))
	}

	return &playlist.Created{
		ID:   string(p.ID),
		Name: p.Name,
		URL:  url,
	}, nil
}

// AddTracksToPlaylist appends tracks to a playlist, preserving order.
// trackURIs can be Spotify IDs, URLs, or URIs.
func (c *Client) AddTracksToPlaylist(ctx context.Context, accessToken, playlistID string, trackURIs []string) error {
	ids := make([]spotify.ID, len(trackURIs))
	for i, uri := range trackURIs {
		ids[i] = spotify.ID(extractTrackID(uri))
	}

	client := c.forToken(ctx, accessToken)

	// Spotify allows max 100 tracks per request
	for i := 0; i < len(ids); i += maxItemsPerRequest {
		end := min(i+maxItemsPerRequest, len(ids))

		if _, err := client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[i:end]...); err != nil {
			return errors.Wrapf(convertError(err), "failed to add tracks %d-%d to playlist", i, end-1)
		}
	}

	return nil
}

// CurrentUser returns the account id and display name of the token's owner.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (id, displayName string, err error) {
	user, err := c.forToken(ctx, accessToken).CurrentUser(ctx)
	if err != nil {
		return "", "", errors.Wrap(convertError(err), "failed to get current user")
	}
	return user.ID, user.DisplayName, nil
}

// GetPlaylistURL returns the Spotify URL for a playlist.
func GetPlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// convertError maps the library's error body onto APIError and leaves other errors untouched.
func convertError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return &APIError{Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *spotify.Error
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &APIError{Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	return err
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already a track ID
	return input
}
