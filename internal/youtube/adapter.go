// Package youtube wraps the Google YouTube Data API for channel identity
// discovery: given a bare access token, resolve which channel it belongs to.
package youtube

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"

	"github.com/sumire/channelsync/internal/domain"
)

// ChannelSaver persists a discovered credential. Satisfied by
// service.ChannelService.
type ChannelSaver interface {
	SaveChannel(ctx context.Context, cred domain.ChannelCredential) error
}

// Identity is a channel as reported by the API for the token's owner.
type Identity struct {
	ChannelID string
	Title     string
	Thumbnail string
}

// listMine fetches the caller's own channel for a bound access token.
type listMine func(ctx context.Context, accessToken string) (*Identity, error)

// Adapter lazily prepares the API client machinery once per process and
// binds access tokens to it per call.
type Adapter struct {
	saver ChannelSaver

	loadOnce sync.Once
	loadErr  error
	load     func() error

	baseOpts []option.ClientOption
	list     listMine
}

// NewAdapter creates an Adapter persisting through saver.
func NewAdapter(saver ChannelSaver) *Adapter {
	a := &Adapter{saver: saver}
	a.load = a.prepareOptions
	a.list = a.listMineAPI
	return a
}

// prepareOptions builds the per-process client options shared by every
// subsequent call. Runs once, under the EnsureLoaded guard.
func (a *Adapter) prepareOptions() error {
	a.baseOpts = []option.ClientOption{option.WithTelemetryDisabled()}
	return nil
}

// EnsureLoaded prepares the SDK machinery. Idempotent: repeated calls after
// the first perform no work and return the first outcome.
func (a *Adapter) EnsureLoaded() error {
	a.loadOnce.Do(func() {
		a.loadErr = a.load()
	})
	if a.loadErr != nil {
		return fmt.Errorf("load youtube sdk: %w", a.loadErr)
	}
	return nil
}

// ResolveIdentity binds accessToken to the API client and returns the
// channel it belongs to. domain.ErrNoChannel when the token's account has
// no channel (for instance a token missing the channel scope).
func (a *Adapter) ResolveIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	if err := a.EnsureLoaded(); err != nil {
		return nil, err
	}
	return a.list(ctx, accessToken)
}

// Authenticate resolves the token's channel identity and persists it as a
// credential. This is the single-channel discovery path; it bypasses the
// directory merge entirely.
func (a *Adapter) Authenticate(ctx context.Context, accessToken string) (*domain.ChannelCredential, error) {
	id, err := a.ResolveIdentity(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	cred := domain.ChannelCredential{
		ChannelID:    id.ChannelID,
		ChannelTitle: id.Title,
		Thumbnail:    id.Thumbnail,
		AccessToken:  accessToken,
	}
	if err := a.saver.SaveChannel(ctx, cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (a *Adapter) listMineAPI(ctx context.Context, accessToken string) (*Identity, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	opts := append([]option.ClientOption{option.WithTokenSource(src)}, a.baseOpts...)
	svc, err := youtubeapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube client: %w", err)
	}

	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).MaxResults(1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list own channels: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, domain.ErrNoChannel
	}

	ch := resp.Items[0]
	id := &Identity{ChannelID: ch.Id}
	if ch.Snippet != nil {
		id.Title = ch.Snippet.Title
		if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
			id.Thumbnail = ch.Snippet.Thumbnails.Default.Url
		}
	}
	return id, nil
}
