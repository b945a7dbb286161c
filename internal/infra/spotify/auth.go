package spotify

import (
	"context"

	"github.com/cockroachdb/errors"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
)

// ErrTokenExchange marks failures of the authorization-code exchange itself, as opposed to the profile fetch that follows.
var ErrTokenExchange = errors.New("token exchange failed")

// Scopes requested from the user: profile read plus playlist write.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// AuthConfig represents OAuth application configuration.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Session is what a completed authorization hands to the application.
type Session struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Authenticator runs the authorization-code flow for end users.
type Authenticator struct {
	auth   *spotifyauth.Authenticator
	client *Client
}

// NewAuthenticator creates a new Authenticator. client is used to fetch the user profile after the exchange.
func NewAuthenticator(cfg AuthConfig, client *Client) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("spotify redirect URL is required")
	}

	return &Authenticator{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithRedirectURL(cfg.RedirectURL),
			spotifyauth.WithScopes(Scopes...),
		),
		client: client,
	}, nil
}

// AuthURL returns the consent page URL carrying state.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Exchange trades an authorization code for an access token and resolves the account behind it.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*Session, error) {
	token, err := a.auth.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to exchange authorization code"), ErrTokenExchange)
	}

	id, displayName, err := a.client.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken: token.AccessToken,
		UserID:      id,
		DisplayName: displayName,
	}, nil
}
