// Package store persists the channel credential list. Every mutation is a
// whole-list write: callers read, merge, and write back, so the store itself
// stays a dumb durable container with no partial-update primitive.
package store

import (
	"context"

	"github.com/sumire/channelsync/internal/domain"
)

// Store is the persistence contract for channel credentials.
//
// Load never fails on absent or malformed data; both are an empty list and
// self-heal on the next successful save. Save overwrites the full list
// atomically from the caller's perspective. Concurrent writers from separate
// processes are last-writer-wins and deliberately uncoordinated.
type Store interface {
	Load(ctx context.Context) ([]domain.ChannelCredential, error)
	Save(ctx context.Context, records []domain.ChannelCredential) error
	Clear(ctx context.Context) error
}
