package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Review statuses of a stored draft.
const (
	ReviewPending     = "pending"
	ReviewApproved    = "approved"
	ReviewRejected    = "rejected"
	ReviewSkipped     = "skipped"
	ReviewNotRequired = "not_required"
)

// Draft is one finished pipeline run.
type Draft struct {
	ID           uuid.UUID       `json:"id"`
	LeadID       *string         `json:"lead_id,omitempty"`
	Channel      string          `json:"channel"`
	Intent       string          `json:"intent"`
	SourceText   string          `json:"source_text"`
	Notes        *string         `json:"notes,omitempty"`
	ReplyText    string          `json:"reply_text"`
	Analysis     json.RawMessage `json:"analysis"`
	Checks       json.RawMessage `json:"checks"`
	Failures     []string        `json:"failures"`
	Valid        bool            `json:"valid"`
	ReviewStatus string          `json:"review_status"`
	ReviewNote   *string         `json:"review_note,omitempty"`
	ReviewTS     *string         `json:"review_ts,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
}

const draftColumns = `id, lead_id, channel, intent, source_text, notes, reply_text, analysis, checks,
	failures, valid, review_status, review_note, review_ts, created_at, reviewed_at`

// WriteReplyDraft inserts d and returns its new ID. An empty ReviewStatus is
// stored as pending.
func (s *Store) WriteReplyDraft(ctx context.Context, d Draft) (uuid.UUID, error) {
	id := uuid.New()
	status := d.ReviewStatus
	if status == "" {
		status = ReviewPending
	}
	failures := d.Failures
	if failures == nil {
		failures = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO reply_drafts (id, lead_id, channel, intent, source_text, notes, reply_text, analysis, checks, failures, valid, review_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())`,
		id, d.LeadID, d.Channel, d.Intent, d.SourceText, d.Notes, d.ReplyText,
		[]byte(d.Analysis), []byte(d.Checks), failures, d.Valid, status,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert reply draft: %w", err)
	}
	return id, nil
}

// GetReplyDraft fetches a draft by ID. It returns ErrNotFound when no row
// matches.
func (s *Store) GetReplyDraft(ctx context.Context, id uuid.UUID) (*Draft, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM reply_drafts WHERE id = $1`, id)
	d, err := scanDraft(row)
	if err != nil {
		return nil, fmt.Errorf("get reply draft: %w", err)
	}
	return d, nil
}

// GetDraftByReviewTS finds the draft whose Slack review message has ts.
func (s *Store) GetDraftByReviewTS(ctx context.Context, ts string) (*Draft, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+draftColumns+` FROM reply_drafts WHERE review_ts = $1`, ts)
	d, err := scanDraft(row)
	if err != nil {
		return nil, fmt.Errorf("get draft by review ts: %w", err)
	}
	return d, nil
}

// ListDraftsByLead returns the newest drafts for a lead, newest first.
func (s *Store) ListDraftsByLead(ctx context.Context, leadID string, limit int) ([]Draft, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+draftColumns+` FROM reply_drafts
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, *d)
	}
	return drafts, rows.Err()
}

// SetDraftReviewTS records the Slack message that carries the draft's review.
func (s *Store) SetDraftReviewTS(ctx context.Context, id uuid.UUID, ts string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE reply_drafts SET review_ts = $1 WHERE id = $2`, ts, id)
	if err != nil {
		return fmt.Errorf("set review ts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDraftReviewStatus records a review outcome.
func (s *Store) UpdateDraftReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reply_drafts SET review_status = $1, review_note = NULLIF($2, ''), reviewed_at = now()
		WHERE id = $3`,
		status, note, id,
	)
	if err != nil {
		return fmt.Errorf("update review status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDraft(row pgx.Row) (*Draft, error) {
	var (
		d                  Draft
		analysis, checkRaw []byte
	)
	err := row.Scan(&d.ID, &d.LeadID, &d.Channel, &d.Intent, &d.SourceText, &d.Notes, &d.ReplyText,
		&analysis, &checkRaw, &d.Failures, &d.Valid, &d.ReviewStatus, &d.ReviewNote, &d.ReviewTS,
		&d.CreatedAt, &d.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Analysis = analysis
	d.Checks = checkRaw
	return &d, nil
}
