package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sumire/channelsync/internal/directory"
	"github.com/sumire/channelsync/internal/domain"
)

// TokenRefresher mints a new access token from a stored refresh token.
// Satisfied by the directory client in backend mode and by the Google
// exchanger in direct mode.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken, channelID string) (*directory.RefreshedToken, error)
}

// RefreshOutcome is the per-channel result of a refresh pass.
type RefreshOutcome struct {
	ChannelID  string                    `json:"channelId"`
	Credential *domain.ChannelCredential `json:"credential,omitempty"`
	Err        error                     `json:"-"`
}

// RefreshService renews access tokens for cached channels. It performs no
// retry or backoff; a revoked refresh token marks the channel as needing
// re-authorization and is skipped thereafter.
type RefreshService struct {
	channels  *ChannelService
	refresher TokenRefresher
}

// NewRefreshService creates a RefreshService.
func NewRefreshService(channels *ChannelService, refresher TokenRefresher) *RefreshService {
	return &RefreshService{channels: channels, refresher: refresher}
}

// RefreshOne renews the access token for channelID and persists the result.
// A channel with no stored refresh token fails with ErrNoRefreshToken
// without touching the network; one already marked as revoked fails with
// ErrInvalidRefreshToken the same way.
func (s *RefreshService) RefreshOne(ctx context.Context, channelID string) (*domain.ChannelCredential, error) {
	cred, err := s.channels.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, cred)
}

// RefreshAll attempts a refresh for every cached channel. A failure for one
// channel never halts the rest; the caller gets one outcome per channel in
// cache order.
func (s *RefreshService) RefreshAll(ctx context.Context) ([]RefreshOutcome, error) {
	list, err := s.channels.EffectiveChannels(ctx, "")
	if err != nil {
		return nil, err
	}

	outcomes := make([]RefreshOutcome, 0, len(list.Channels))
	for _, cred := range list.Channels {
		updated, err := s.refresh(ctx, cred)
		outcome := RefreshOutcome{ChannelID: cred.ChannelID, Err: err}
		if err == nil {
			outcome.Credential = updated
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *RefreshService) refresh(ctx context.Context, cred domain.ChannelCredential) (*domain.ChannelCredential, error) {
	if cred.NeedsReauth {
		return nil, fmt.Errorf("channel %s needs re-authorization: %w",
			cred.ChannelID, domain.ErrInvalidRefreshToken)
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("channel %s: %w", cred.ChannelID, domain.ErrNoRefreshToken)
	}

	renewed, err := s.refresher.RefreshToken(ctx, cred.RefreshToken, cred.ChannelID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRefreshToken) {
			// Terminal for this channel. Persist the flag so later passes
			// skip it instead of retrying forever.
			cred.NeedsReauth = true
			if saveErr := s.channels.SaveChannel(ctx, cred); saveErr != nil {
				slog.Error("failed to mark channel for re-authorization",
					"channel_id", cred.ChannelID, "error", saveErr)
			}
		}
		return nil, err
	}

	cred.AccessToken = renewed.AccessToken
	cred.ExpiresAt = renewed.ExpiresAt
	cred.NeedsReauth = false
	if err := s.channels.SaveChannel(ctx, cred); err != nil {
		return nil, err
	}
	return &cred, nil
}
