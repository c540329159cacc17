package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/channelsync/internal/domain"
)

// PostgresStore persists credentials in a channel_credentials table. Save
// replaces the whole table contents in one transaction, keeping the
// whole-list write semantics of the file store.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a PostgresStore and ensures the backing table
// exists.
func NewPostgresStore(ctx context.Context, db *sqlx.DB) (*PostgresStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS channel_credentials (
			channel_id    TEXT PRIMARY KEY,
			channel_title TEXT NOT NULL DEFAULT '',
			thumbnail     TEXT NOT NULL DEFAULT '',
			access_token  TEXT NOT NULL DEFAULT '',
			refresh_token TEXT NOT NULL DEFAULT '',
			expires_at    BIGINT NOT NULL DEFAULT 0,
			needs_reauth  BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	if err != nil {
		return nil, fmt.Errorf("ensure channel_credentials table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Load returns every stored credential.
func (s *PostgresStore) Load(ctx context.Context) ([]domain.ChannelCredential, error) {
	var records []domain.ChannelCredential
	err := s.db.SelectContext(ctx, &records,
		`SELECT channel_id, channel_title, thumbnail, access_token, refresh_token, expires_at, needs_reauth
		 FROM channel_credentials
		 ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("load channel credentials: %w", err)
	}
	return records, nil
}

// Save replaces the stored list with records.
func (s *PostgresStore) Save(ctx context.Context, records []domain.ChannelCredential) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_credentials`); err != nil {
		return fmt.Errorf("clear channel credentials: %w", err)
	}

	for _, r := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO channel_credentials
			   (channel_id, channel_title, thumbnail, access_token, refresh_token, expires_at, needs_reauth)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (channel_id)
			 DO UPDATE SET channel_title = EXCLUDED.channel_title,
			               thumbnail     = EXCLUDED.thumbnail,
			               access_token  = EXCLUDED.access_token,
			               refresh_token = EXCLUDED.refresh_token,
			               expires_at    = EXCLUDED.expires_at,
			               needs_reauth  = EXCLUDED.needs_reauth`,
			r.ChannelID, r.ChannelTitle, r.Thumbnail, r.AccessToken, r.RefreshToken, r.ExpiresAt, r.NeedsReauth)
		if err != nil {
			return fmt.Errorf("save channel %s: %w", r.ChannelID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Clear removes every stored credential.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channel_credentials`); err != nil {
		return fmt.Errorf("clear channel credentials: %w", err)
	}
	return nil
}
