package domain

import "time"

// TokenState classifies the validity of a stored access token. Transitions
// are driven only by expiry time and explicit refresh outcomes, never by
// ad-hoc status-code checks.
type TokenState string

const (
	TokenStateValid        TokenState = "valid"
	TokenStateExpiringSoon TokenState = "expiring_soon"
	TokenStateRevoked      TokenState = "revoked"
	TokenStateUnknown      TokenState = "unknown"
)

// ChannelCredential is one connected YouTube channel with its cached tokens.
// ChannelID is the unique key within the store.
type ChannelCredential struct {
	ChannelID    string `json:"channelId" db:"channel_id"`
	ChannelTitle string `json:"channelTitle" db:"channel_title"`
	Thumbnail    string `json:"thumbnail" db:"thumbnail"`
	AccessToken  string `json:"accessToken,omitempty" db:"access_token"`
	RefreshToken string `json:"refreshToken,omitempty" db:"refresh_token"`
	// ExpiresAt is the epoch-millisecond expiry estimate for AccessToken;
	// zero means unknown.
	ExpiresAt int64 `json:"expiresAt,omitempty" db:"expires_at"`
	// NeedsReauth is set when the provider has revoked consent for this
	// channel; refresh attempts are skipped until the user reconnects.
	NeedsReauth bool `json:"needsReauth,omitempty" db:"needs_reauth"`
}

// State derives the token state at the given instant. leeway widens the
// expiry boundary so callers can refresh before the token actually dies.
func (c ChannelCredential) State(now time.Time, leeway time.Duration) TokenState {
	if c.NeedsReauth {
		return TokenStateRevoked
	}
	if c.ExpiresAt == 0 {
		return TokenStateUnknown
	}
	expiry := time.UnixMilli(c.ExpiresAt)
	if now.Add(leeway).After(expiry) {
		return TokenStateExpiringSoon
	}
	return TokenStateValid
}

// RemoteChannelRecord is a channel as reported by the admin backend's
// directory listing. Pointer fields distinguish "absent from the payload"
// from "present but empty": only fields physically present in the payload
// may overwrite cached values during reconciliation.
type RemoteChannelRecord struct {
	ChannelID    string  `json:"channelId"`
	ChannelTitle *string `json:"channelTitle"`
	Thumbnail    *string `json:"thumbnail"`
	AccessToken  *string `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
	ExpiresAt    *int64  `json:"expiresAt"`
}

// Merge overlays the remote record on top of a cached credential. Remote
// wins for every field it actually carries; cached values survive where the
// payload is silent, so a directory listing that omits tokens never wipes a
// previously cached refresh token. A remote token update also clears the
// needs-reauth flag, since fresh credentials supersede a revocation.
func (r RemoteChannelRecord) Merge(local ChannelCredential) ChannelCredential {
	out := local
	out.ChannelID = r.ChannelID
	if r.ChannelTitle != nil {
		out.ChannelTitle = *r.ChannelTitle
	}
	if r.Thumbnail != nil {
		out.Thumbnail = *r.Thumbnail
	}
	if r.AccessToken != nil {
		out.AccessToken = *r.AccessToken
		out.NeedsReauth = false
	}
	if r.RefreshToken != nil {
		out.RefreshToken = *r.RefreshToken
		out.NeedsReauth = false
	}
	if r.ExpiresAt != nil {
		out.ExpiresAt = *r.ExpiresAt
	}
	return out
}
