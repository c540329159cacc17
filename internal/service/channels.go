package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sumire/channelsync/internal/directory"
	"github.com/sumire/channelsync/internal/domain"
	"github.com/sumire/channelsync/internal/store"
)

// Directory is the admin-backend surface consumed by the channel services.
type Directory interface {
	FetchChannelsForUser(ctx context.Context, userID string) ([]domain.RemoteChannelRecord, error)
	DeleteChannel(ctx context.Context, channelID string) error
	AuthURL(ctx context.Context, scope string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*directory.ExchangedTokens, error)
	RefreshToken(ctx context.Context, refreshToken, channelID string) (*directory.RefreshedToken, error)
}

// ChannelList is the reconciled view of channel credentials. Stale is set
// when the directory could not be reached and the list is served from cache
// alone.
type ChannelList struct {
	Channels []domain.ChannelCredential
	Stale    bool
}

// ChannelService reconciles the local credential cache with the backend
// directory. The directory is authoritative for channel identity and
// display fields; the cache is authoritative for credential fields the
// directory does not carry.
type ChannelService struct {
	store     store.Store
	directory Directory
}

// NewChannelService creates a ChannelService.
func NewChannelService(st store.Store, dir Directory) *ChannelService {
	return &ChannelService{store: st, directory: dir}
}

// EffectiveChannels returns the reconciled channel list for userID. An empty
// userID is the offline path: the cache is returned as-is without touching
// the network. A directory failure degrades to the cache with Stale set and
// performs no write. An empty directory result is authoritative and clears
// the cache.
func (s *ChannelService) EffectiveChannels(ctx context.Context, userID string) (ChannelList, error) {
	local, err := s.store.Load(ctx)
	if err != nil {
		return ChannelList{}, fmt.Errorf("load cached channels: %w", err)
	}

	if userID == "" {
		return ChannelList{Channels: dedupe(local)}, nil
	}

	remote, err := s.directory.FetchChannelsForUser(ctx, userID)
	if err != nil {
		if isSessionInvalid(err) {
			return ChannelList{}, err
		}
		slog.Warn("directory unavailable, serving cached channels",
			"user_id", userID, "error", err)
		return ChannelList{Channels: dedupe(local), Stale: true}, nil
	}

	if len(remote) == 0 {
		if err := s.store.Clear(ctx); err != nil {
			return ChannelList{}, fmt.Errorf("clear cache: %w", err)
		}
		return ChannelList{Channels: []domain.ChannelCredential{}}, nil
	}

	byID := make(map[string]domain.ChannelCredential, len(local))
	for _, c := range local {
		byID[c.ChannelID] = c
	}

	merged := make([]domain.ChannelCredential, 0, len(remote))
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if r.ChannelID == "" || seen[r.ChannelID] {
			continue
		}
		seen[r.ChannelID] = true
		merged = append(merged, r.Merge(byID[r.ChannelID]))
	}

	if err := s.store.Save(ctx, merged); err != nil {
		return ChannelList{}, fmt.Errorf("persist merged channels: %w", err)
	}
	return ChannelList{Channels: merged}, nil
}

// Channel returns the cached credential for channelID.
func (s *ChannelService) Channel(ctx context.Context, channelID string) (domain.ChannelCredential, error) {
	local, err := s.store.Load(ctx)
	if err != nil {
		return domain.ChannelCredential{}, fmt.Errorf("load cached channels: %w", err)
	}
	for _, c := range local {
		if c.ChannelID == channelID {
			return c, nil
		}
	}
	return domain.ChannelCredential{}, domain.ErrNotFound
}

// SaveChannel upserts one credential through a read-merge-write of the full
// list. This is the single persist primitive shared by reconciliation,
// refresh, and identity discovery.
func (s *ChannelService) SaveChannel(ctx context.Context, cred domain.ChannelCredential) error {
	if cred.ChannelID == "" {
		return fmt.Errorf("%w: channel id is required", domain.ErrInvalidInput)
	}

	local, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cached channels: %w", err)
	}

	out := make([]domain.ChannelCredential, 0, len(local)+1)
	for _, c := range local {
		if c.ChannelID != cred.ChannelID {
			out = append(out, c)
		}
	}
	out = append(out, cred)

	if err := s.store.Save(ctx, out); err != nil {
		return fmt.Errorf("persist channel %s: %w", cred.ChannelID, err)
	}
	return nil
}

// RemoveChannel disconnects a channel. The backend delete must succeed
// before the cache is touched; a failed remote delete leaves the cache
// intact.
func (s *ChannelService) RemoveChannel(ctx context.Context, channelID string) error {
	if err := s.directory.DeleteChannel(ctx, channelID); err != nil {
		return err
	}

	local, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cached channels: %w", err)
	}

	out := make([]domain.ChannelCredential, 0, len(local))
	for _, c := range local {
		if c.ChannelID != channelID {
			out = append(out, c)
		}
	}
	if err := s.store.Save(ctx, out); err != nil {
		return fmt.Errorf("persist removal of %s: %w", channelID, err)
	}
	return nil
}

// dedupe enforces channel-id uniqueness over a stored list; the last record
// wins, matching the upsert order of SaveChannel.
func dedupe(records []domain.ChannelCredential) []domain.ChannelCredential {
	if len(records) == 0 {
		return []domain.ChannelCredential{}
	}
	byID := make(map[string]int, len(records))
	out := make([]domain.ChannelCredential, 0, len(records))
	for _, c := range records {
		if i, ok := byID[c.ChannelID]; ok {
			out[i] = c
			continue
		}
		byID[c.ChannelID] = len(out)
		out = append(out, c)
	}
	return out
}

// isSessionInvalid reports whether err means the caller's own session is
// invalid, which must not degrade to cached data.
func isSessionInvalid(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized)
}
