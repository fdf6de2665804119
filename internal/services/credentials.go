package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/oauth2"
)

// TokenRefresher resolves access tokens, exchanging refresh tokens at the Spotify token endpoint when needed.
//
// Spotify issues PKCE tokens to a public client, so the refresh grant carries the client id and no secret.
type TokenRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewTokenRefresher creates a refresher for clientID. An empty tokenURL uses the Spotify accounts service.
func NewTokenRefresher(clientID, tokenURL string, client *http.Client) *TokenRefresher {
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &TokenRefresher{
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: client,
	}
}

// EnsureToken returns current when it is set. Otherwise it refreshes with refresh.
//
// Returns [shared.ErrNotAuthenticated] when there is nothing to work with and [shared.ErrRefreshFailed]
// when the exchange is rejected.
func (r *TokenRefresher) EnsureToken(ctx context.Context, current, refresh string) (string, error) {
	if current != "" {
		return current, nil
	}
	if refresh == "" {
		return "", fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrNoRefreshToken)
	}
	if r.config.ClientID == "" {
		return "", fmt.Errorf("%w: %w: spotify client id is not configured", shared.ErrNotAuthenticated, shared.ErrMissingConfig)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	token, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", shared.ErrRefreshFailed)
	}
	return token.AccessToken, nil
}
