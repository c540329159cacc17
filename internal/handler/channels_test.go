package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sumire/channelsync/internal/directory"
	"github.com/sumire/channelsync/internal/domain"
	"github.com/sumire/channelsync/internal/service"
	"github.com/sumire/channelsync/internal/store"
)

var testSecret = []byte("test-secret")

type fakeDirectory struct {
	channels  []domain.RemoteChannelRecord
	fetchErr  error
	deleteErr error
}

func (f *fakeDirectory) FetchChannelsForUser(context.Context, string) ([]domain.RemoteChannelRecord, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.channels, nil
}

func (f *fakeDirectory) DeleteChannel(context.Context, string) error {
	return f.deleteErr
}

func (f *fakeDirectory) AuthURL(context.Context, string) (string, error) {
	return "https://accounts.google.com/o/oauth2/v2/auth", nil
}

func (f *fakeDirectory) ExchangeCode(context.Context, string) (*directory.ExchangedTokens, error) {
	return nil, errors.New("not configured")
}

func (f *fakeDirectory) RefreshToken(context.Context, string, string) (*directory.RefreshedToken, error) {
	return nil, errors.New("not configured")
}

type fakeAuthenticator struct {
	saver interface {
		SaveChannel(ctx context.Context, cred domain.ChannelCredential) error
	}
	cred *domain.ChannelCredential
	err  error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, accessToken string) (*domain.ChannelCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	cred := *f.cred
	cred.AccessToken = accessToken
	if f.saver != nil {
		if err := f.saver.SaveChannel(ctx, cred); err != nil {
			return nil, err
		}
	}
	return &cred, nil
}

func signSession(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign session token: %v", err)
	}
	return s
}

func newTestServer(t *testing.T, dir service.Directory, st store.Store) *echo.Echo {
	return newTestServerWith(t, dir, st, &fakeAuthenticator{err: errors.New("not configured")})
}

func newTestServerWith(t *testing.T, dir service.Directory, st store.Store, auth Authenticator) *echo.Echo {
	t.Helper()

	channels := service.NewChannelService(st, dir)
	refresh := service.NewRefreshService(channels, dir.(service.TokenRefresher))
	connect := service.NewConnectService(channels, service.NewBackendExchanger(dir), nil, time.Minute)
	h := NewChannelHandler(channels, refresh, connect, auth, 5*time.Minute)

	e := echo.New()
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	api := e.Group("/api/v1")
	api.GET("/oauth/callback", h.OAuthCallback)
	protected := api.Group("", SessionAuth(testSecret))
	protected.GET("/channels", h.List)
	protected.POST("/channels", h.Save)
	protected.DELETE("/channels/:id", h.Remove)
	protected.POST("/channels/authenticate", h.Authenticate)
	return e
}

func TestListChannels(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.Save(context.Background(), []domain.ChannelCredential{
		{ChannelID: "A", ChannelTitle: "Cached", AccessToken: "t1", RefreshToken: "r1"},
	})
	title := "Fresh"
	e := newTestServer(t, &fakeDirectory{channels: []domain.RemoteChannelRecord{
		{ChannelID: "A", ChannelTitle: &title},
	}}, mem)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Data struct {
			Channels []domain.ChannelCredential `json:"channels"`
			Stale    bool                       `json:"stale"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Stale {
		t.Fatal("fresh list must not be stale")
	}
	if len(resp.Data.Channels) != 1 || resp.Data.Channels[0].ChannelTitle != "Fresh" {
		t.Fatalf("unexpected channels: %#v", resp.Data.Channels)
	}
	if resp.Data.Channels[0].RefreshToken != "r1" {
		t.Fatal("cached refresh token must survive reconciliation")
	}
}

func TestListChannelsReportsTokenState(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.Save(context.Background(), []domain.ChannelCredential{
		{ChannelID: "A", AccessToken: "t1", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()},
		{ChannelID: "B", AccessToken: "t2", ExpiresAt: time.Now().Add(time.Minute).UnixMilli()},
		{ChannelID: "C", AccessToken: "t3", NeedsReauth: true},
		{ChannelID: "D", AccessToken: "t4"},
	})
	e := newTestServer(t, &fakeDirectory{channels: []domain.RemoteChannelRecord{
		{ChannelID: "A"}, {ChannelID: "B"}, {ChannelID: "C"}, {ChannelID: "D"},
	}}, mem)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Data struct {
			Channels []struct {
				ChannelID string            `json:"channelId"`
				State     domain.TokenState `json:"state"`
			} `json:"channels"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	want := map[string]domain.TokenState{
		"A": domain.TokenStateValid,
		"B": domain.TokenStateExpiringSoon,
		"C": domain.TokenStateRevoked,
		"D": domain.TokenStateUnknown,
	}
	if len(resp.Data.Channels) != len(want) {
		t.Fatalf("unexpected channel count: %#v", resp.Data.Channels)
	}
	for _, ch := range resp.Data.Channels {
		if ch.State != want[ch.ChannelID] {
			t.Errorf("channel %s: state %q, want %q", ch.ChannelID, ch.State, want[ch.ChannelID])
		}
	}
}

func TestListChannelsStaleOnDirectoryFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.Save(context.Background(), []domain.ChannelCredential{{ChannelID: "A"}})
	e := newTestServer(t, &fakeDirectory{fetchErr: errors.New("backend down")}, mem)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data struct {
			Stale bool `json:"stale"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Data.Stale {
		t.Fatal("expected stale flag on degraded list")
	}
}

func TestListChannelsRequiresSession(t *testing.T) {
	e := newTestServer(t, &fakeDirectory{}, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestSaveChannelValidation(t *testing.T) {
	e := newTestServer(t, &fakeDirectory{}, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels",
		strings.NewReader(`{"channelTitle":"missing id"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Error *APIError `json:"error"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error == nil || resp.Error.Code != "validation_error" {
		t.Fatalf("expected validation error, got %#v", resp.Error)
	}
}

func TestSaveChannel(t *testing.T) {
	mem := store.NewMemoryStore()
	e := newTestServer(t, &fakeDirectory{}, mem)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels",
		strings.NewReader(`{"channelId":"UC9","channelTitle":"Imported","accessToken":"tok"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	stored, _ := mem.Load(context.Background())
	if len(stored) != 1 || stored[0].ChannelID != "UC9" {
		t.Fatalf("credential not stored: %#v", stored)
	}
}

func TestAuthenticateChannel(t *testing.T) {
	mem := store.NewMemoryStore()
	channels := service.NewChannelService(mem, &fakeDirectory{})
	auth := &fakeAuthenticator{
		saver: channels,
		cred:  &domain.ChannelCredential{ChannelID: "UC7", ChannelTitle: "Discovered"},
	}
	e := newTestServerWith(t, &fakeDirectory{}, mem, auth)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/authenticate",
		strings.NewReader(`{"accessToken":"popup-token"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Data domain.ChannelCredential `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.ChannelID != "UC7" || resp.Data.AccessToken != "popup-token" {
		t.Fatalf("unexpected credential: %#v", resp.Data)
	}
	stored, _ := mem.Load(context.Background())
	if len(stored) != 1 || stored[0].ChannelID != "UC7" {
		t.Fatalf("credential not stored: %#v", stored)
	}
}

func TestAuthenticateChannelValidation(t *testing.T) {
	e := newTestServer(t, &fakeDirectory{}, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/authenticate",
		strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}
}

func TestAuthenticateChannelNoChannel(t *testing.T) {
	auth := &fakeAuthenticator{err: domain.ErrNoChannel}
	e := newTestServerWith(t, &fakeDirectory{}, store.NewMemoryStore(), auth)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/authenticate",
		strings.NewReader(`{"accessToken":"scopeless"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body)
	}
}

func TestRemoveChannelFailureKeepsCache(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.Save(context.Background(), []domain.ChannelCredential{{ChannelID: "A"}})
	e := newTestServer(t, &fakeDirectory{deleteErr: errors.New("backend down")}, mem)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/channels/A", nil)
	req.Header.Set("Authorization", "Bearer "+signSession(t, "user-1"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	stored, _ := mem.Load(context.Background())
	if len(stored) != 1 {
		t.Fatalf("cache must be intact after failed remote delete: %#v", stored)
	}
}

func TestOAuthCallbackValidation(t *testing.T) {
	e := newTestServer(t, &fakeDirectory{}, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/oauth/callback?code=abc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing state should be 400, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/oauth/callback?state=x&code=y", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown flow should be 404, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/oauth/callback?error=access_denied", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("consent denial should be 400, got %d", rec.Code)
	}
}
