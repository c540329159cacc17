// Package directory is the HTTP client for the admin backend, the
// authoritative source for which channels belong to a user. Calls are
// stateless and carry no retry policy; callers decide how to degrade.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sumire/channelsync/internal/domain"
)

// Client talks to the admin backend's /admin endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the backend at baseURL. token is the bearer
// credential for the backend's admin API; http.DefaultClient is used when
// httpClient is nil.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// FetchChannelsForUser lists the channels the backend associates with userID.
func (c *Client) FetchChannelsForUser(ctx context.Context, userID string) ([]domain.RemoteChannelRecord, error) {
	var records []domain.RemoteChannelRecord
	err := c.do(ctx, http.MethodGet,
		"/admin/get-auth-channel/"+url.PathEscape(userID), nil, &records)
	if err != nil {
		return nil, fmt.Errorf("fetch channels for user %s: %w", userID, err)
	}
	return records, nil
}

// DeleteChannel removes the channel on the backend. The local cache must
// only be updated after this succeeds.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	var resp struct {
		Message string `json:"message"`
	}
	err := c.do(ctx, http.MethodDelete,
		"/admin/delete-channel/"+url.PathEscape(channelID), nil, &resp)
	if err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

// AuthURL asks the backend for the Google consent URL for the given scopes.
func (c *Client) AuthURL(ctx context.Context, scope string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodGet,
		"/admin/google/auth-url?scope="+url.QueryEscape(scope), nil, &resp)
	if err != nil {
		return "", fmt.Errorf("get auth url: %w", err)
	}
	return resp.URL, nil
}

// ExchangedTokens is the backend's response to an authorization-code
// exchange.
type ExchangedTokens struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresInSeconds int64  `json:"expires_in"`
}

// ExchangeCode trades a single-use authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*ExchangedTokens, error) {
	var resp ExchangedTokens
	err := c.do(ctx, http.MethodPost, "/admin/exchange-code",
		map[string]string{"code": code}, &resp)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return &resp, nil
}

// RefreshedToken is the backend's response to a refresh request.
type RefreshedToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// RefreshToken mints a new access token for channelID from its refresh
// token. domain.ErrInvalidRefreshToken signals revoked consent and is
// terminal for the channel.
func (c *Client) RefreshToken(ctx context.Context, refreshToken, channelID string) (*RefreshedToken, error) {
	var resp RefreshedToken
	err := c.do(ctx, http.MethodPost, "/admin/refresh-token",
		map[string]string{"refresh_token": refreshToken, "channelId": channelID}, &resp)
	if err != nil {
		return nil, fmt.Errorf("refresh token for channel %s: %w", channelID, err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapStatus(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// mapStatus converts backend failures into the domain error taxonomy. The
// backend reports OAuth-level failures with an "error" field in the body.
func (c *Client) mapStatus(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case body.Error == "invalid_grant":
		return domain.ErrInvalidGrant
	case body.Error == "invalid_refresh_token":
		return domain.ErrInvalidRefreshToken
	default:
		msg := body.Message
		if msg == "" {
			msg = string(raw)
		}
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(msg))
	}
}
