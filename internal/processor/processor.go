package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/quill/internal/hermes"
	"github.com/MikeSquared-Agency/quill/internal/reply"
	"github.com/MikeSquared-Agency/quill/internal/signal"
	"github.com/MikeSquared-Agency/quill/internal/slack"
	"github.com/MikeSquared-Agency/quill/internal/store"
)

// requestTimeout bounds one NATS-triggered run. Four generation calls at the
// backend's own timeout fit comfortably.
const requestTimeout = 5 * time.Minute

// Generator runs the reply pipeline.
type Generator interface {
	Generate(ctx context.Context, req reply.Request) (*reply.Result, error)
}

// DraftStore persists finished drafts and their review state.
type DraftStore interface {
	WriteReplyDraft(ctx context.Context, d store.Draft) (uuid.UUID, error)
	SetDraftReviewTS(ctx context.Context, id uuid.UUID, ts string) error
	GetDraftByReviewTS(ctx context.Context, ts string) (*store.Draft, error)
	UpdateDraftReviewStatus(ctx context.Context, id uuid.UUID, status, note string) error
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Reviewer puts flagged drafts in front of a human.
type Reviewer interface {
	PostDraftForReview(ctx context.Context, review slack.DraftReview) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

// Processor wraps the reply pipeline with persistence, events and human
// review. Store, publisher and reviewer are all optional.
type Processor struct {
	pipeline Generator
	store    DraftStore
	pub      Publisher
	reviewer Reviewer
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]pendingReview // keyed by Slack message TS
}

type pendingReview struct {
	DraftID uuid.UUID
	LeadID  string
}

// Outcome is the result of one drafted reply.
type Outcome struct {
	DraftID *uuid.UUID    `json:"id,omitempty"`
	Result  *reply.Result `json:"result"`
}

func New(pipeline Generator, s DraftStore, pub Publisher, reviewer Reviewer, logger *slog.Logger) *Processor {
	return &Processor{
		pipeline: pipeline,
		store:    s,
		pub:      pub,
		reviewer: reviewer,
		logger:   logger,
		pending:  make(map[string]pendingReview),
	}
}

// Draft runs the pipeline and then persists, announces and, when the reply
// still fails checks, flags it for review. Side-effect failures are logged and
// never fail the draft.
func (p *Processor) Draft(ctx context.Context, req reply.Request, requestID string) (*Outcome, error) {
	res, err := p.pipeline.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Result: res}
	leadID := deref(req.LeadID)

	if p.store != nil {
		id, err := p.persist(ctx, req, res)
		if err != nil {
			p.logger.Error("persist draft failed", "lead_id", leadID, "error", err)
		} else {
			out.DraftID = &id
		}
	}

	draftID := ""
	if out.DraftID != nil {
		draftID = out.DraftID.String()
	}

	p.publish(hermes.SubjectReplyGenerated, hermes.ReplyGenerated{
		RequestID:    requestID,
		DraftID:      draftID,
		LeadID:       leadID,
		Channel:      string(req.Channel),
		Intent:       string(req.Intent),
		ReplyText:    res.ReplyText,
		Valid:        res.Valid(),
		Repaired:     res.Meta.Repaired,
		UsedFallback: res.Meta.UsedFallback,
		Checks:       checksMap(res),
		Failures:     res.Meta.Failures,
	})

	if !res.Valid() {
		p.flag(ctx, req, res, out.DraftID, requestID)
	}

	p.logger.Info("draft processed",
		"request_id", requestID,
		"draft_id", draftID,
		"lead_id", leadID,
		"valid", res.Valid(),
	)
	return out, nil
}

func (p *Processor) persist(ctx context.Context, req reply.Request, res *reply.Result) (uuid.UUID, error) {
	analysis, err := json.Marshal(res.Analysis)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal analysis: %w", err)
	}
	checks, err := json.Marshal(res.Checks)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal checks: %w", err)
	}

	status := store.ReviewNotRequired
	if !res.Valid() {
		status = store.ReviewPending
	}

	return p.store.WriteReplyDraft(ctx, store.Draft{
		LeadID:       req.LeadID,
		Channel:      string(req.Channel),
		Intent:       string(req.Intent),
		SourceText:   req.WhatTheySaid,
		Notes:        req.Notes,
		ReplyText:    res.ReplyText,
		Analysis:     analysis,
		Checks:       checks,
		Failures:     res.Meta.Failures,
		Valid:        res.Valid(),
		ReviewStatus: status,
	})
}

func (p *Processor) flag(ctx context.Context, req reply.Request, res *reply.Result, draftID *uuid.UUID, requestID string) {
	leadID := deref(req.LeadID)
	id := ""
	if draftID != nil {
		id = draftID.String()
	}

	p.publish(hermes.SubjectReplyFlagged, hermes.ReplyFlagged{
		RequestID: requestID,
		DraftID:   id,
		LeadID:    leadID,
		Channel:   string(req.Channel),
		Issues:    res.Issues,
	})

	if p.reviewer == nil {
		return
	}
	ts, err := p.reviewer.PostDraftForReview(ctx, slack.DraftReview{
		DraftID:    id,
		LeadID:     leadID,
		Channel:    string(req.Channel),
		Intent:     string(req.Intent),
		SourceText: req.WhatTheySaid,
		ReplyText:  res.ReplyText,
		Issues:     res.Issues,
		Failures:   res.Meta.Failures,
	})
	if err != nil {
		p.logger.Error("slack post failed", "draft_id", id, "error", err)
		return
	}
	if draftID == nil {
		// Nothing to update when the reaction arrives.
		return
	}

	p.mu.Lock()
	p.pending[ts] = pendingReview{DraftID: *draftID, LeadID: leadID}
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.SetDraftReviewTS(ctx, *draftID, ts); err != nil {
			p.logger.Warn("failed to record review ts", "draft_id", id, "error", err)
		}
	}
}

// HandleReplyRequested is the NATS handler for quill.reply.requested.
func (p *Processor) HandleReplyRequested(subject string, data []byte) {
	var evt hermes.ReplyRequested
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse reply request", "error", err)
		return
	}
	if evt.RequestID == "" {
		evt.RequestID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req := reply.Request{
		Channel:      signal.Channel(evt.Channel),
		Intent:       signal.Intent(evt.Intent),
		WhatTheySaid: evt.WhatTheySaid,
		Notes:        evt.Notes,
		LeadID:       evt.LeadID,
	}
	if _, err := p.Draft(ctx, req, evt.RequestID); err != nil {
		if errors.Is(err, reply.ErrInvalidRequest) {
			p.logger.Warn("rejected reply request", "request_id", evt.RequestID, "error", err)
			return
		}
		p.logger.Error("reply generation failed", "request_id", evt.RequestID, "error", err)
	}
}

// HandleReaction processes Slack reaction feedback from slack-forwarder via NATS.
func (p *Processor) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseReactionEvent(data)
	if err != nil {
		p.logger.Error("failed to parse reaction", "error", err)
		return
	}

	verdict := slack.ParseReaction(evt.Reaction)
	if verdict == slack.VerdictUnknown {
		return // not a review reaction
	}

	review, ok := p.lookupReview(ctx, evt.MessageTS)
	if !ok {
		return // not a message we're tracking
	}

	if p.store != nil {
		if err := p.store.UpdateDraftReviewStatus(ctx, review.DraftID, string(verdict), ""); err != nil {
			p.logger.Error("failed to update review status", "draft_id", review.DraftID, "error", err)
		}
	}

	if verdict == slack.VerdictRejected && p.reviewer != nil {
		if err := p.reviewer.PostThread(ctx, evt.MessageTS, "Rejected. What was wrong with this draft?"); err != nil {
			p.logger.Warn("failed to post rejection thread", "error", err)
		}
	}

	p.publish(hermes.SubjectReplyReviewed, hermes.ReplyReviewed{
		DraftID:  review.DraftID.String(),
		LeadID:   review.LeadID,
		Verdict:  string(verdict),
		Reviewer: evt.UserID,
	})

	p.logger.Info("draft reviewed", "draft_id", review.DraftID, "verdict", verdict, "user", evt.UserID)
}

// lookupReview finds the draft behind a review message, first in memory and
// then in the store so reviews survive restarts. A match is consumed.
func (p *Processor) lookupReview(ctx context.Context, ts string) (pendingReview, bool) {
	p.mu.Lock()
	review, ok := p.pending[ts]
	if ok {
		delete(p.pending, ts)
	}
	p.mu.Unlock()
	if ok {
		return review, true
	}

	if p.store == nil || ts == "" {
		return pendingReview{}, false
	}
	d, err := p.store.GetDraftByReviewTS(ctx, ts)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("review lookup failed", "ts", ts, "error", err)
		}
		return pendingReview{}, false
	}
	if d.ReviewStatus != store.ReviewPending {
		return pendingReview{}, false
	}
	return pendingReview{DraftID: d.ID, LeadID: deref(d.LeadID)}, true
}

func (p *Processor) publish(subject string, data any) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Publish(subject, data); err != nil {
		p.logger.Warn("publish failed", "subject", subject, "error", err)
	}
}

func checksMap(res *reply.Result) map[string]bool {
	c := res.Checks
	return map[string]bool{
		"directed_at_them":           c.DirectedAtThem,
		"references_specific_detail": c.ReferencesSpecificDetail,
		"mentions_brand":             c.MentionsBrand,
		"mentions_product":           c.MentionsProduct,
		"includes_link":              c.IncludesLink,
		"single_cta":                 c.SingleCTA,
		"no_banned_phrases":          c.NoBannedPhrases,
		"no_impersonation":           c.NoImpersonation,
		"length_in_range":            res.Length.InRange,
		"tone_valid":                 res.Tone.Valid,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
