package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("store: not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS reply_drafts (
	id            uuid PRIMARY KEY,
	lead_id       text,
	channel       text NOT NULL,
	intent        text NOT NULL,
	source_text   text NOT NULL,
	notes         text,
	reply_text    text NOT NULL,
	analysis      jsonb NOT NULL,
	checks        jsonb NOT NULL,
	failures      text[] NOT NULL DEFAULT '{}',
	valid         boolean NOT NULL,
	review_status text NOT NULL DEFAULT 'pending',
	review_note   text,
	review_ts     text,
	created_at    timestamptz NOT NULL DEFAULT now(),
	reviewed_at   timestamptz
);
CREATE INDEX IF NOT EXISTS reply_drafts_lead_id_idx ON reply_drafts (lead_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS reply_drafts_review_ts_idx ON reply_drafts (review_ts) WHERE review_ts IS NOT NULL;
`

// EnsureSchema creates the drafts table and its indexes if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
