package store

import (
	"context"
	"sync"

	"github.com/sumire/channelsync/internal/domain"
)

// MemoryStore is an in-memory Store used by tests and as a throwaway cache
// when no durable path is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records []domain.ChannelCredential

	// SaveErr and LoadErr, when set, are returned by the corresponding
	// operation. Test hooks only.
	SaveErr error
	LoadErr error

	// Saves counts Save calls, including failed ones.
	Saves int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) ([]domain.ChannelCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	out := make([]domain.ChannelCredential, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, records []domain.ChannelCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.records = make([]domain.ChannelCredential, len(records))
	copy(s.records, records)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}
