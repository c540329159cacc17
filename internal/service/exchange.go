package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sumire/channelsync/internal/directory"
	"github.com/sumire/channelsync/internal/domain"
)

// GoogleScopes are the scopes requested when connecting a channel:
// analytics (including monetary reports), channel data, and partner access.
var GoogleScopes = []string{
	"https://www.googleapis.com/auth/yt-analytics.readonly",
	"https://www.googleapis.com/auth/youtube.readonly",
	"https://www.googleapis.com/auth/youtubepartner",
	"https://www.googleapis.com/auth/yt-analytics-monetary.readonly",
}

// Tokens is the provider-agnostic result of an authorization-code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// TokenExchanger turns an authorization code into tokens and produces the
// consent URL that starts the flow.
type TokenExchanger interface {
	AuthURL(ctx context.Context, state string) (string, error)
	Exchange(ctx context.Context, code string) (*Tokens, error)
}

// BackendExchanger delegates the Google exchange to the admin backend,
// which holds the OAuth client secret.
type BackendExchanger struct {
	directory Directory
}

// NewBackendExchanger creates a BackendExchanger on top of the directory
// client.
func NewBackendExchanger(dir Directory) *BackendExchanger {
	return &BackendExchanger{directory: dir}
}

// AuthURL fetches the consent URL from the backend and pins the flow state
// onto it so the callback can be correlated.
func (e *BackendExchanger) AuthURL(ctx context.Context, state string) (string, error) {
	raw, err := e.directory.AuthURL(ctx, strings.Join(GoogleScopes, " "))
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("backend returned unparseable auth url: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Exchange trades the code via the backend endpoint.
func (e *BackendExchanger) Exchange(ctx context.Context, code string) (*Tokens, error) {
	exchanged, err := e.directory.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	var expiresAt int64
	if exchanged.ExpiresInSeconds > 0 {
		expiresAt = time.Now().Add(time.Duration(exchanged.ExpiresInSeconds) * time.Second).UnixMilli()
	}
	return &Tokens{
		AccessToken:  exchanged.AccessToken,
		RefreshToken: exchanged.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// GoogleExchanger performs the code exchange directly against Google.
// Available when the service is configured with its own OAuth client
// credentials instead of delegating to the admin backend.
type GoogleExchanger struct {
	config *oauth2.Config
}

// NewGoogleExchanger creates a GoogleExchanger for the given client
// credentials and redirect URL.
func NewGoogleExchanger(clientID, clientSecret, redirectURL string) *GoogleExchanger {
	return &GoogleExchanger{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       GoogleScopes,
			RedirectURL:  redirectURL,
		},
	}
}

// AuthURL builds the consent URL. Offline access plus forced consent so
// Google issues a refresh token even on re-connect.
func (e *GoogleExchanger) AuthURL(_ context.Context, state string) (string, error) {
	return e.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Exchange trades the single-use code for tokens.
func (e *GoogleExchanger) Exchange(ctx context.Context, code string) (*Tokens, error) {
	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGrant, err)
	}
	var expiresAt int64
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry.UnixMilli()
	}
	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// RefreshToken implements TokenRefresher against Google directly, so direct
// mode does not need the backend's refresh endpoint. The channel id is part
// of the interface contract but Google only needs the refresh token.
func (e *GoogleExchanger) RefreshToken(ctx context.Context, refreshToken, _ string) (*directory.RefreshedToken, error) {
	src := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRefreshToken, err)
	}
	return &directory.RefreshedToken{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry.UnixMilli(),
	}, nil
}
