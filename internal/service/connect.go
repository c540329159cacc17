package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/sumire/channelsync/internal/domain"
	"github.com/sumire/channelsync/internal/youtube"
)

// IdentityResolver resolves which channel an access token belongs to.
// Satisfied by the youtube adapter.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, accessToken string) (*youtube.Identity, error)
}

// ConnectFlow is a pending channel connection handed to the dashboard: the
// user is sent to URL, and the OAuth callback completes the flow keyed by
// State.
type ConnectFlow struct {
	State string `json:"state"`
	URL   string `json:"url"`
}

type pendingFlow struct {
	code     chan string
	deadline time.Time
}

// ConnectService runs the channel connection flow as a single awaitable
// operation: begin, wait for the authorization code, exchange it, resolve
// the channel identity, persist the credential.
type ConnectService struct {
	channels  *ChannelService
	exchanger TokenExchanger
	resolver  IdentityResolver
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingFlow
}

// NewConnectService creates a ConnectService. timeout bounds how long a
// begun flow waits for the user to finish consent.
func NewConnectService(channels *ChannelService, exchanger TokenExchanger, resolver IdentityResolver, timeout time.Duration) *ConnectService {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &ConnectService{
		channels:  channels,
		exchanger: exchanger,
		resolver:  resolver,
		timeout:   timeout,
		pending:   make(map[string]*pendingFlow),
	}
}

// Begin registers a new flow and returns the consent URL the user must
// visit.
func (s *ConnectService) Begin(ctx context.Context) (*ConnectFlow, error) {
	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate flow state: %w", err)
	}

	url, err := s.exchanger.AuthURL(ctx, state)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.prune(time.Now())
	s.pending[state] = &pendingFlow{
		code:     make(chan string, 1),
		deadline: time.Now().Add(s.timeout),
	}
	s.mu.Unlock()

	return &ConnectFlow{State: state, URL: url}, nil
}

// Complete delivers the authorization code from the OAuth callback to the
// flow waiting on state. Unknown or expired state is ErrNotFound.
func (s *ConnectService) Complete(state, code string) error {
	s.mu.Lock()
	flow, ok := s.pending[state]
	if ok && time.Now().After(flow.deadline) {
		delete(s.pending, state)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown connect flow: %w", domain.ErrNotFound)
	}

	select {
	case flow.code <- code:
		return nil
	default:
		// A second delivery for the same state; the code is single-use
		// anyway, so drop it.
		return nil
	}
}

// Wait blocks until the flow's code arrives, then exchanges it and persists
// the connected channel. Returns ErrFlowTimeout when the user never
// finishes consent within the flow timeout, or the context error on
// cancellation.
func (s *ConnectService) Wait(ctx context.Context, state string) (*domain.ChannelCredential, error) {
	s.mu.Lock()
	flow, ok := s.pending[state]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown connect flow: %w", domain.ErrNotFound)
	}
	defer func() {
		s.mu.Lock()
		delete(s.pending, state)
		s.mu.Unlock()
	}()

	timer := time.NewTimer(time.Until(flow.deadline))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, domain.ErrFlowTimeout
	case code := <-flow.code:
		return s.finish(ctx, code)
	}
}

func (s *ConnectService) finish(ctx context.Context, code string) (*domain.ChannelCredential, error) {
	tokens, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	id, err := s.resolver.ResolveIdentity(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	cred := domain.ChannelCredential{
		ChannelID:    id.ChannelID,
		ChannelTitle: id.Title,
		Thumbnail:    id.Thumbnail,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.ExpiresAt,
	}
	if err := s.channels.SaveChannel(ctx, cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// prune drops expired flows. Caller holds the lock.
func (s *ConnectService) prune(now time.Time) {
	for state, flow := range s.pending {
		if now.After(flow.deadline) {
			delete(s.pending, state)
		}
	}
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
