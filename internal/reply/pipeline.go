// Package reply drafts a reply to something a person wrote. A run analyzes the
// text, writes a reply from the analysis, validates it and repairs it at most
// once. Only a failed Respond call is fatal; every other deviation is recorded
// in the result's failure log.
package reply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
	"github.com/MikeSquared-Agency/quill/internal/generation"
	"github.com/MikeSquared-Agency/quill/internal/prompt"
	"github.com/MikeSquared-Agency/quill/internal/rules"
	"github.com/MikeSquared-Agency/quill/internal/signal"
)

var ErrInvalidRequest = errors.New("reply: invalid request")

const defaultMaxTokens = 1024

// Generation steps, as sent in generation.Request.Meta.
const (
	StepAnalyze      = "analyze"
	StepAnalyzeRetry = "analyze_retry"
	StepRespond      = "respond"
	StepRepair       = "repair"
)

// State is a pipeline state. Result.Meta.States lists every state a run
// passed through.
type State string

const (
	StateAnalyzing  State = "analyzing"
	StateAnalyzed   State = "analyzed"
	StateResponding State = "responding"
	StateResponded  State = "responded"
	StateValidating State = "validating"
	StateRepairing  State = "repairing"
	StateDone       State = "done"
)

// Request is the pipeline entrypoint input.
type Request struct {
	Channel      signal.Channel `json:"channel"`
	Intent       signal.Intent  `json:"intent"`
	WhatTheySaid string         `json:"what_they_said"`
	Notes        *string        `json:"notes,omitempty"`
	LeadID       *string        `json:"lead_id,omitempty"`
}

// Validate rejects requests the pipeline cannot run.
func (r Request) Validate() error {
	switch {
	case !r.Channel.Valid():
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, r.Channel)
	case !r.Intent.Valid():
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, r.Intent)
	case strings.TrimSpace(r.WhatTheySaid) == "":
		return fmt.Errorf("%w: what_they_said is empty", ErrInvalidRequest)
	}
	return nil
}

func (r Request) input() signal.Input {
	in := signal.Input{Channel: r.Channel, Intent: r.Intent, WhatTheySaid: r.WhatTheySaid}
	if r.Notes != nil {
		in.Notes = *r.Notes
	}
	return in
}

// Meta records how a run went.
type Meta struct {
	Failures      []string        `json:"failures"`
	AnalysisTrace json.RawMessage `json:"analysis_trace,omitempty"`
	RespondTrace  json.RawMessage `json:"respond_trace,omitempty"`
	RepairTrace   json.RawMessage `json:"repair_trace,omitempty"`
	Repaired      bool            `json:"repaired"`
	UsedFallback  bool            `json:"used_fallback"`
	CacheHit      bool            `json:"cache_hit"`
	States        []State         `json:"states"`
}

// Result is what a run returns. Checks, Length, Tone and Issues always
// describe ReplyText.
type Result struct {
	ReplyText string           `json:"reply_text"`
	Analysis  signal.Extract   `json:"analysis"`
	Checks    rules.Checks     `json:"checks"`
	Length    rules.Length     `json:"length"`
	Tone      rules.ToneResult `json:"tone"`
	Issues    []string         `json:"issues"`
	Meta      Meta             `json:"meta"`
}

// Valid reports whether the final reply passed every check.
func (r *Result) Valid() bool {
	return r.Checks.All() && r.Length.InRange && r.Tone.Valid
}

// Pipeline runs requests against a generation client. It holds no per-run
// state and is safe for concurrent use.
type Pipeline struct {
	gen       generation.Client
	logger    *slog.Logger
	brand     catalog.Brand
	maxTokens int
	cache     *lru.Cache[string, signal.Extract]
}

type Option func(*Pipeline)

func WithBrand(b catalog.Brand) Option {
	return func(p *Pipeline) { p.brand = b }
}

func WithMaxTokens(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithAnalysisCache keeps up to size validated analyses keyed by the request
// text. Fallback analyses are never cached. size <= 0 disables the cache.
func WithAnalysisCache(size int) Option {
	return func(p *Pipeline) {
		if size <= 0 {
			return
		}
		if c, err := lru.New[string, signal.Extract](size); err == nil {
			p.cache = c
		}
	}
}

func New(gen generation.Client, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:       gen,
		logger:    logger,
		brand:     catalog.DefaultBrand,
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Brand returns the brand terms replies are checked against.
func (p *Pipeline) Brand() catalog.Brand { return p.brand }

// Generate runs one request through the state machine.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		p:   p,
		req: req,
		in:  req.input(),
		res: &Result{Meta: Meta{Failures: []string{}}},
	}

	state := StateAnalyzing
	for {
		r.res.Meta.States = append(r.res.Meta.States, state)
		if state == StateDone {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generate reply: %w", err)
		}
		next, err := r.step(ctx, state)
		if err != nil {
			return nil, err
		}
		state = next
	}

	res := r.finish()
	p.logger.Info("reply generated",
		"channel", req.Channel,
		"intent", req.Intent,
		"lead_id", deref(req.LeadID),
		"valid", res.Valid(),
		"repaired", res.Meta.Repaired,
		"used_fallback", res.Meta.UsedFallback,
		"failures", len(res.Meta.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// run is the mutable state of one Generate call.
type run struct {
	p   *Pipeline
	req Request
	in  signal.Input
	res *Result

	analysis       signal.Extract
	raw            string
	text           string
	report         rules.Report
	repairAttempts int
}

func (r *run) step(ctx context.Context, s State) (State, error) {
	switch s {
	case StateAnalyzing:
		if err := r.analyze(ctx); err != nil {
			return "", err
		}
		return StateAnalyzed, nil

	case StateAnalyzed:
		r.res.Analysis = r.analysis
		if r.p.cache != nil && !r.res.Meta.UsedFallback && !r.res.Meta.CacheHit {
			r.p.cache.Add(cacheKey(r.in), cloneExtract(r.analysis))
		}
		return StateResponding, nil

	case StateResponding:
		resp, err := r.call(ctx, StepRespond, prompt.Respond(r.analysis, r.p.brand))
		if err != nil {
			return "", fmt.Errorf("respond: %w", err)
		}
		r.res.Meta.RespondTrace = resp.Trace
		r.raw = resp.Content
		return StateResponded, nil

	case StateResponded:
		r.text = Clean(r.raw)
		return StateValidating, nil

	case StateValidating:
		r.report = rules.Validate(r.text, r.analysis, r.p.brand)
		if r.report.Valid() {
			return StateDone, nil
		}
		if r.repairAttempts > 0 {
			for _, issue := range r.report.Issues {
				r.fail("still failing after repair: " + issue)
			}
			return StateDone, nil
		}
		for _, issue := range r.report.Issues {
			r.fail("validation: " + issue)
		}
		return StateRepairing, nil

	case StateRepairing:
		r.repairAttempts++
		resp, err := r.call(ctx, StepRepair, prompt.Repair(r.text, r.report.Issues, r.analysis, r.p.brand))
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("repair: %w", ctx.Err())
			}
			r.fail(fmt.Sprintf("repair: generation failed: %v", err))
			return StateDone, nil
		}
		r.res.Meta.RepairTrace = resp.Trace
		r.res.Meta.Repaired = true
		r.text = Clean(resp.Content)
		return StateValidating, nil
	}
	return "", fmt.Errorf("unknown pipeline state %q", s)
}

// analyze fills r.analysis from the cache, the model, or the fallback. It only
// returns an error when ctx is done.
func (r *run) analyze(ctx context.Context) error {
	if r.p.cache != nil {
		if e, ok := r.p.cache.Get(cacheKey(r.in)); ok {
			r.analysis = cloneExtract(e)
			r.res.Meta.CacheHit = true
			return nil
		}
	}

	e, previous, problems, err := r.attemptAnalysis(ctx, StepAnalyze, prompt.Analyze(r.in))
	if err == nil {
		r.analysis = e
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("analyze: %w", ctx.Err())
	}
	r.fail("analyze: " + err.Error())

	e, _, _, err = r.attemptAnalysis(ctx, StepAnalyzeRetry, prompt.AnalyzeRetry(r.in, previous, problems))
	if err == nil {
		r.analysis = e
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("analyze retry: %w", ctx.Err())
	}
	r.fail("analyze retry: " + err.Error())

	r.analysis = signal.Fallback(r.in)
	r.res.Meta.UsedFallback = true
	r.fail(fmt.Sprintf("analysis replaced by fallback (confidence %.1f)", signal.FallbackConfidence))
	return nil
}

// attemptAnalysis makes one Analyze call. On failure it returns the raw output
// and the problems to feed into a retry prompt.
func (r *run) attemptAnalysis(ctx context.Context, step, userPrompt string) (signal.Extract, string, []string, error) {
	resp, err := r.call(ctx, step, userPrompt)
	if err != nil {
		return signal.Extract{}, "", []string{"the model call failed"}, fmt.Errorf("generation failed: %w", err)
	}
	r.res.Meta.AnalysisTrace = resp.Trace

	e, err := signal.Parse(resp.Content, r.in)
	if err != nil {
		var verr *signal.ValidationError
		if errors.As(err, &verr) {
			return signal.Extract{}, resp.Content, verr.Problems, err
		}
		return signal.Extract{}, resp.Content, []string{err.Error()}, err
	}
	return e, resp.Content, nil, nil
}

func (r *run) call(ctx context.Context, step, userPrompt string) (*generation.Response, error) {
	meta := map[string]string{
		generation.MetaStep:    step,
		generation.MetaChannel: string(r.req.Channel),
	}
	if r.req.LeadID != nil {
		meta[generation.MetaLeadID] = *r.req.LeadID
	}
	resp, err := r.p.gen.Generate(ctx, generation.Request{
		SystemPrompt:    prompt.System(r.p.brand),
		DeveloperPrompt: prompt.Developer(r.p.brand),
		UserPrompt:      userPrompt,
		Meta:            meta,
		MaxTokens:       r.p.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: nil response", step)
	}
	return resp, nil
}

func (r *run) fail(msg string) {
	r.res.Meta.Failures = append(r.res.Meta.Failures, msg)
	r.p.logger.Warn("reply pipeline deviation", "channel", r.req.Channel, "lead_id", deref(r.req.LeadID), "failure", msg)
}

func (r *run) finish() *Result {
	res := r.res
	res.ReplyText = r.text
	res.Analysis = r.analysis
	res.Checks = r.report.Checks
	res.Length = r.report.Length
	res.Tone = r.report.Tone
	res.Issues = r.report.Issues
	return res
}

func cacheKey(in signal.Input) string {
	return strings.Join([]string{string(in.Channel), string(in.Intent), in.WhatTheySaid, in.Notes}, "\x00")
}

func cloneExtract(e signal.Extract) signal.Extract {
	e.Detected.ServiceKeywords = slices.Clone(e.Detected.ServiceKeywords)
	e.Values = slices.Clone(e.Values)
	e.Pressures = slices.Clone(e.Pressures)
	e.Risks = slices.Clone(e.Risks)
	e.Openings = slices.Clone(e.Openings)
	e.DoNotSay = slices.Clone(e.DoNotSay)
	return e
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
