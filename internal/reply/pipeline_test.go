package reply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
	"github.com/MikeSquared-Agency/quill/internal/generation"
	"github.com/MikeSquared-Agency/quill/internal/rules"
	"github.com/MikeSquared-Agency/quill/internal/signal"
)

const realtorPost = "Just closed on 3 properties this week! Juggling showings, paperwork, and client calls around the clock."

const realtorAnalysis = `Sure, here is the analysis:
{
  "raw_text": "something else",
  "channel": "comment",
  "intent": "reply",
  "detected": {
    "person_name": null,
    "business_name": null,
    "trade": "real estate agent",
    "location": null,
    "service_keywords": ["showings", "paperwork", "client calls"]
  },
  "values": ["hustle", "client care"],
  "pressures": ["time"],
  "risks": ["overwhelmed"],
  "openings": ["busy week", "3 closings"],
  "stage": "solo_owner",
  "do_not_say": ["leverage"],
  "recommended_angle": "Congratulate them on the 3 closings and name the juggling.",
  "confidence": 0.8
}
Let me know if you need anything else.`

const goodReply = "Congrats on closing 3 properties in one week. Juggling showings, paperwork, and client calls " +
	"around the clock is a lot, and it sounds like your phone never stops. That is exactly the stretch where " +
	"2nd Look helps: Lead Desk keeps every follow-up in one place so nothing slips while you are out showing homes. " +
	"Take a look when things slow down: https://2ndlook.app/desk"

const badReply = "I own a real estate business too! Happy to help. Let me know!"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptStep struct {
	content string
	err     error
}

// scriptedClient replays a fixed list of responses and records every request.
type scriptedClient struct {
	mu    sync.Mutex
	steps []scriptStep
	calls []generation.Request
}

func script(steps ...scriptStep) *scriptedClient {
	return &scriptedClient{steps: steps}
}

func ok(content string) scriptStep { return scriptStep{content: content} }
func fail(err error) scriptStep    { return scriptStep{err: err} }

func (s *scriptedClient) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	n := len(s.calls)
	if n > len(s.steps) {
		return nil, fmt.Errorf("unexpected generation call %d (%s)", n, req.Meta[generation.MetaStep])
	}
	st := s.steps[n-1]
	if st.err != nil {
		return nil, st.err
	}
	return &generation.Response{Content: st.content, Trace: json.RawMessage(fmt.Sprintf(`{"call":%d}`, n))}, nil
}

func (s *scriptedClient) stepNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Meta[generation.MetaStep]
	}
	return out
}

func realtorRequest() Request {
	lead := "lead-42"
	return Request{
		Channel:      signal.ChannelComment,
		Intent:       signal.IntentReply,
		WhatTheySaid: realtorPost,
		LeadID:       &lead,
	}
}

func TestGenerate_HappyPath(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok("Here's the reply:\n\n\""+goodReply+"\""))
	p := New(gen, discardLogger())

	res, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	assert.Equal(t, goodReply, res.ReplyText)
	assert.True(t, res.Valid(), "issues: %v", res.Issues)
	assert.True(t, res.Checks.All())
	assert.Empty(t, res.Meta.Failures)
	assert.False(t, res.Meta.Repaired)
	assert.False(t, res.Meta.UsedFallback)
	assert.Equal(t, []State{StateAnalyzing, StateAnalyzed, StateResponding, StateResponded, StateValidating, StateDone}, res.Meta.States)
	assert.Equal(t, []string{StepAnalyze, StepRespond}, gen.stepNames())

	// request values win over the model's echo
	assert.Equal(t, realtorPost, res.Analysis.RawText)
	assert.Equal(t, 0.8, res.Analysis.Confidence)
	assert.JSONEq(t, `{"call":1}`, string(res.Meta.AnalysisTrace))
	assert.JSONEq(t, `{"call":2}`, string(res.Meta.RespondTrace))
	assert.Nil(t, res.Meta.RepairTrace)
}

func TestGenerate_EndToEndRealtorComment(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok(goodReply))
	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	text := res.ReplyText
	assert.Contains(t, text, "2nd Look")
	assert.Contains(t, text, "https://2ndlook.app/desk")
	assert.True(t, strings.Contains(text, "3") || strings.Contains(strings.ToLower(text), "juggling"))
	assert.Empty(t, rules.FindBannedPhrases(text))
	words := rules.CountWords(text)
	assert.GreaterOrEqual(t, words, 40)
	assert.LessOrEqual(t, words, 110)
	assert.Equal(t, words, res.Length.Words)
}

func TestGenerate_RequestCarriesPromptsAndMeta(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok(goodReply))
	p := New(gen, discardLogger(), WithMaxTokens(333))

	_, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	require.Len(t, gen.calls, 2)

	analyze := gen.calls[0]
	assert.Contains(t, analyze.SystemPrompt, "2nd Look")
	assert.Contains(t, analyze.DeveloperPrompt, "Lead Desk")
	assert.Contains(t, analyze.UserPrompt, realtorPost)
	assert.Contains(t, analyze.UserPrompt, "Return only JSON")
	assert.Equal(t, "lead-42", analyze.Meta[generation.MetaLeadID])
	assert.Equal(t, "comment", analyze.Meta[generation.MetaChannel])
	assert.Equal(t, 333, analyze.MaxTokens)

	respond := gen.calls[1]
	assert.Contains(t, respond.UserPrompt, "Return only the reply text.")
	assert.Contains(t, respond.UserPrompt, "showings")
}

func TestGenerate_FallbackAfterTwoBadAnalyses(t *testing.T) {
	fallbackReply := strings.Replace(goodReply, "Take a look", "Reliability matters when you are this busy. Take a look", 1)
	gen := script(ok("I cannot help with that."), ok(`{"stage":"huge"}`), ok(fallbackReply))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	assert.True(t, res.Meta.UsedFallback)
	assert.Equal(t, signal.FallbackConfidence, res.Analysis.Confidence)
	assert.Equal(t, catalog.JargonTerms, res.Analysis.DoNotSay)
	assert.Equal(t, realtorPost, res.Analysis.RawText)
	assert.GreaterOrEqual(t, len(res.Meta.Failures), 2)
	assert.Contains(t, res.Meta.Failures[0], "analyze:")
	assert.Contains(t, res.Meta.Failures[1], "analyze retry:")
	assert.Equal(t, []string{StepAnalyze, StepAnalyzeRetry, StepRespond}, gen.stepNames())

	retry := gen.calls[1].UserPrompt
	assert.Contains(t, retry, "previous analysis failed")
	assert.Contains(t, retry, "I cannot help with that.")

	assert.True(t, res.Valid(), "issues: %v", res.Issues)
	assert.Equal(t, fallbackReply, res.ReplyText)
}

func TestGenerate_AnalyzeRetrySucceeds(t *testing.T) {
	gen := script(ok(`{"stage": "solo_owner"}`), ok(realtorAnalysis), ok(goodReply))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	assert.False(t, res.Meta.UsedFallback)
	assert.Equal(t, 0.8, res.Analysis.Confidence)
	require.Len(t, res.Meta.Failures, 1)
	assert.Contains(t, res.Meta.Failures[0], "confidence is required")
	assert.Contains(t, gen.calls[1].UserPrompt, "- confidence is required")
}

func TestGenerate_AnalyzeGenerationErrorsFallBack(t *testing.T) {
	boom := errors.New("upstream 529")
	fallbackReply := strings.Replace(goodReply, "Take a look", "Reliability matters when you are this busy. Take a look", 1)
	gen := script(fail(boom), fail(boom), ok(fallbackReply))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.True(t, res.Meta.UsedFallback)
	assert.Contains(t, res.Meta.Failures[0], "upstream 529")
	assert.Nil(t, res.Meta.AnalysisTrace)
}

func TestGenerate_RepairFixesReply(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok(badReply), ok("Reply: "+goodReply))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	assert.True(t, res.Meta.Repaired)
	assert.Equal(t, goodReply, res.ReplyText)
	assert.True(t, res.Valid())
	assert.True(t, res.Checks.All())
	assert.Empty(t, res.Issues)
	assert.NotEmpty(t, res.Meta.Failures)
	for _, f := range res.Meta.Failures {
		assert.True(t, strings.HasPrefix(f, "validation: "), f)
	}
	assert.Equal(t, []string{StepAnalyze, StepRespond, StepRepair}, gen.stepNames())
	assert.Equal(t, []State{
		StateAnalyzing, StateAnalyzed, StateResponding, StateResponded,
		StateValidating, StateRepairing, StateValidating, StateDone,
	}, res.Meta.States)

	repair := gen.calls[2].UserPrompt
	assert.Contains(t, repair, badReply)
	assert.Contains(t, repair, "impersonates")
	assert.Contains(t, repair, "too short")
}

func TestGenerate_ChecksDescribeFinalTextWhenRepairFails(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok(badReply), ok("I run a realty team, let me know!!"))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	assert.True(t, res.Meta.Repaired)
	assert.Equal(t, "I run a realty team, let me know!!", res.ReplyText)
	assert.False(t, res.Valid())
	assert.False(t, res.Checks.NoImpersonation)
	assert.False(t, res.Tone.Valid)
	assert.Equal(t, rules.CountWords(res.ReplyText), res.Length.Words)

	final := rules.Validate(res.ReplyText, res.Analysis, catalog.DefaultBrand)
	assert.Equal(t, final.Checks, res.Checks)
	assert.Equal(t, final.Issues, res.Issues)

	var after int
	for _, f := range res.Meta.Failures {
		if strings.HasPrefix(f, "still failing after repair: ") {
			after++
		}
	}
	assert.Equal(t, len(final.Issues), after)
	assert.Len(t, gen.calls, 3)
}

func TestGenerate_WorstCaseIsFourCalls(t *testing.T) {
	gen := script(ok("nope"), ok("still nope"), ok(badReply), ok(badReply))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.Len(t, gen.calls, 4)
	assert.True(t, res.Meta.UsedFallback)
	assert.True(t, res.Meta.Repaired)
	assert.False(t, res.Valid())
}

func TestGenerate_RespondErrorIsFatal(t *testing.T) {
	boom := errors.New("connection reset")
	gen := script(ok(realtorAnalysis), fail(boom))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, gen.calls, 2)
}

func TestGenerate_RepairErrorKeepsFirstReply(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok(badReply), fail(errors.New("overloaded")))

	res, err := New(gen, discardLogger()).Generate(context.Background(), realtorRequest())
	require.NoError(t, err)

	assert.False(t, res.Meta.Repaired)
	assert.Equal(t, badReply, res.ReplyText)
	assert.False(t, res.Checks.NoImpersonation)
	last := res.Meta.Failures[len(res.Meta.Failures)-1]
	assert.Contains(t, last, "repair: generation failed: overloaded")
}

func TestGenerate_DMSkipsLinkRule(t *testing.T) {
	dmReply := strings.Replace(goodReply, " Take a look when things slow down: https://2ndlook.app/desk", " Want me to send a quick walkthrough when things slow down?", 1)
	req := realtorRequest()
	req.Channel = signal.ChannelDM
	gen := script(ok(realtorAnalysis), ok(dmReply))

	res, err := New(gen, discardLogger()).Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Checks.IncludesLink)
	assert.True(t, res.Valid(), "issues: %v", res.Issues)
	assert.Equal(t, 140, res.Length.MaxWords)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Request)
	}{
		{"bad channel", func(r *Request) { r.Channel = "tweet" }},
		{"bad intent", func(r *Request) { r.Intent = "sell" }},
		{"empty text", func(r *Request) { r.WhatTheySaid = "   " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := script()
			req := realtorRequest()
			tt.mod(&req)

			_, err := New(gen, discardLogger()).Generate(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, gen.calls)
		})
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := script(ok(realtorAnalysis), ok(goodReply))

	_, err := New(gen, discardLogger()).Generate(ctx, realtorRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.calls)
}

func TestGenerate_AnalysisCache(t *testing.T) {
	gen := script(ok(realtorAnalysis), ok(goodReply), ok(goodReply))
	p := New(gen, discardLogger(), WithAnalysisCache(8))

	first, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.False(t, first.Meta.CacheHit)

	second, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, first.Analysis, second.Analysis)
	assert.Equal(t, []string{StepAnalyze, StepRespond, StepRespond}, gen.stepNames())
}

func TestGenerate_FallbackIsNotCached(t *testing.T) {
	fallbackReply := strings.Replace(goodReply, "Take a look", "Reliability matters when you are this busy. Take a look", 1)
	gen := script(ok("x"), ok("y"), ok(fallbackReply), ok(realtorAnalysis), ok(goodReply))
	p := New(gen, discardLogger(), WithAnalysisCache(8))

	first, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.True(t, first.Meta.UsedFallback)

	second, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.False(t, second.Meta.CacheHit)
	assert.False(t, second.Meta.UsedFallback)
}

func TestGenerate_CustomBrand(t *testing.T) {
	brand := catalog.Brand{Name: "Acme", Product: "Inbox", Link: "https://acme.test"}
	text := "Congrats on closing 3 properties in one week. Juggling showings, paperwork, and client calls " +
		"around the clock is a lot, and it sounds like your phone never stops. That is exactly the stretch where " +
		"Acme helps: Inbox keeps every follow-up in one place so nothing slips while you are out showing homes. " +
		"Take a look when things slow down: https://acme.test"
	gen := script(ok(realtorAnalysis), ok(text))

	p := New(gen, discardLogger(), WithBrand(brand))
	res, err := p.Generate(context.Background(), realtorRequest())
	require.NoError(t, err)
	assert.True(t, res.Valid(), "issues: %v", res.Issues)
	assert.Contains(t, gen.calls[0].SystemPrompt, "Acme")
	assert.Equal(t, brand, p.Brand())
}
