package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/channelsync/internal/domain"
	"github.com/sumire/channelsync/internal/service"
)

// Authenticator discovers and persists the channel behind a bare access
// token. Satisfied by the youtube adapter.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.ChannelCredential, error)
}

// ChannelHandler exposes the credential cache to the dashboard.
type ChannelHandler struct {
	channels      *service.ChannelService
	refresh       *service.RefreshService
	connect       *service.ConnectService
	authenticator Authenticator
	leeway        time.Duration
}

// NewChannelHandler creates a ChannelHandler. leeway widens the expiry
// boundary used to report a token as expiring soon.
func NewChannelHandler(channels *service.ChannelService, refresh *service.RefreshService, connect *service.ConnectService, authenticator Authenticator, leeway time.Duration) *ChannelHandler {
	return &ChannelHandler{
		channels:      channels,
		refresh:       refresh,
		connect:       connect,
		authenticator: authenticator,
		leeway:        leeway,
	}
}

// channelView is a credential plus its derived token state.
type channelView struct {
	domain.ChannelCredential
	State domain.TokenState `json:"state"`
}

type channelListResponse struct {
	Channels []channelView `json:"channels"`
	Stale    bool          `json:"stale"`
}

// List returns the reconciled channel list for the session user, each record
// annotated with its token state. When the backend directory is unreachable
// the cached list is served with stale set.
func (h *ChannelHandler) List(c echo.Context) error {
	session, ok := GetSession(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	list, err := h.channels.EffectiveChannels(c.Request().Context(), session.UserID)
	if err != nil {
		return err
	}

	now := time.Now()
	views := make([]channelView, 0, len(list.Channels))
	for _, cred := range list.Channels {
		views = append(views, channelView{
			ChannelCredential: cred,
			State:             cred.State(now, h.leeway),
		})
	}
	return JSON(c, http.StatusOK, channelListResponse{
		Channels: views,
		Stale:    list.Stale,
	})
}

type authenticateRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
}

// Authenticate resolves which channel an externally obtained access token
// belongs to and stores it, for tokens acquired outside the connect flow.
func (h *ChannelHandler) Authenticate(c echo.Context) error {
	var req authenticateRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cred, err := h.authenticator.Authenticate(c.Request().Context(), req.AccessToken)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, cred)
}

type saveChannelRequest struct {
	ChannelID    string `json:"channelId" validate:"required"`
	ChannelTitle string `json:"channelTitle"`
	Thumbnail    string `json:"thumbnail" validate:"omitempty,url"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt" validate:"omitempty,gte=0"`
}

// Save imports or updates a single credential, for tokens obtained outside
// the connect flow.
func (h *ChannelHandler) Save(c echo.Context) error {
	var req saveChannelRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	cred := domain.ChannelCredential{
		ChannelID:    req.ChannelID,
		ChannelTitle: req.ChannelTitle,
		Thumbnail:    req.Thumbnail,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := h.channels.SaveChannel(c.Request().Context(), cred); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, cred)
}

// Remove disconnects a channel. The backend delete happens first; the cache
// mirrors it only on success.
func (h *ChannelHandler) Remove(c echo.Context) error {
	channelID := c.Param("id")
	if channelID == "" {
		return fmt.Errorf("%w: missing channel id", domain.ErrInvalidInput)
	}
	if err := h.channels.RemoveChannel(c.Request().Context(), channelID); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "channel removed"})
}

// Connect begins a connect flow and returns the consent URL plus the state
// the dashboard uses to await completion.
func (h *ChannelHandler) Connect(c echo.Context) error {
	flow, err := h.connect.Begin(c.Request().Context())
	if err != nil {
		return err
	}
	return JSON(c, http.StatusAccepted, flow)
}

// ConnectWait blocks until the flow identified by the state path parameter
// completes, times out, or the request is cancelled.
func (h *ChannelHandler) ConnectWait(c echo.Context) error {
	state := c.Param("state")
	if state == "" {
		return fmt.Errorf("%w: missing flow state", domain.ErrInvalidInput)
	}

	cred, err := h.connect.Wait(c.Request().Context(), state)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, cred)
}

// OAuthCallback is Google's redirect target. It hands the authorization
// code to the pending flow and renders a minimal page the popup can show.
func (h *ChannelHandler) OAuthCallback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		return fmt.Errorf("%w: consent denied: %s", domain.ErrInvalidInput, errParam)
	}

	state := c.QueryParam("state")
	code := c.QueryParam("code")
	if state == "" || code == "" {
		return fmt.Errorf("%w: missing state or code parameter", domain.ErrInvalidInput)
	}

	if err := h.connect.Complete(state, code); err != nil {
		return err
	}
	return c.HTML(http.StatusOK,
		"<html><body>Channel connected. You may close this window.</body></html>")
}

type refreshOutcomeResponse struct {
	ChannelID  string                    `json:"channelId"`
	Credential *domain.ChannelCredential `json:"credential,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// RefreshAll renews tokens for every cached channel and reports per-channel
// outcomes; individual failures do not fail the request.
func (h *ChannelHandler) RefreshAll(c echo.Context) error {
	outcomes, err := h.refresh.RefreshAll(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]refreshOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		r := refreshOutcomeResponse{ChannelID: o.ChannelID, Credential: o.Credential}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		resp = append(resp, r)
	}
	return JSON(c, http.StatusOK, resp)
}

// RefreshOne renews the token for one channel.
func (h *ChannelHandler) RefreshOne(c echo.Context) error {
	channelID := c.Param("id")
	if channelID == "" {
		return fmt.Errorf("%w: missing channel id", domain.ErrInvalidInput)
	}

	cred, err := h.refresh.RefreshOne(c.Request().Context(), channelID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, cred)
}
