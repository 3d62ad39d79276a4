// Package prompt renders the instruction texts sent to the generation backend.
// Every builder is a pure function of its arguments.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/quill/internal/catalog"
	"github.com/MikeSquared-Agency/quill/internal/signal"
)

const systemTemplate = `You write short replies on behalf of %[1]s to people who posted, messaged or met with us.

Hard rules:
- Speak directly to the person. Use "you" and "your". Never describe them as "they" or "their".
- Never impersonate the person you are replying to. Their business, trade, crew and customers are theirs, not yours.
- Never present their services as something you or %[1]s provide.
- Use at most one call to action.
- Never use these words: %[2]s.
- No exclamation pile-ups, no shouting in capitals, no bullet points or numbered lists.
- Prefer honesty over invented specificity. If you do not know a detail, do not make one up.`

const developerTemplate = `House style for %[1]s:
- Mention %[1]s and %[2]s by name.
- Include %[3]s unless the channel is a direct message.
- Reference at least one concrete detail the person actually shared.
- Keep it conversational. One short paragraph, two at most.`

// System is the fixed preamble shared by every step.
func System(b catalog.Brand) string {
	return fmt.Sprintf(systemTemplate, b.Name, strings.Join(catalog.JargonTerms, ", "))
}

// Developer carries the brand requirements the validator enforces.
func Developer(b catalog.Brand) string {
	return fmt.Sprintf(developerTemplate, b.Name, b.Product, b.Link)
}

// LengthGuide states the word range for ch.
func LengthGuide(ch signal.Channel) string {
	lo, hi := ch.WordRange()
	return fmt.Sprintf("Length: %d-%d words (%s).", lo, hi, ch)
}

func writeSource(sb *strings.Builder, in signal.Input) {
	fmt.Fprintf(sb, "Channel: %s\n", in.Channel)
	fmt.Fprintf(sb, "Intent: %s\n", in.Intent)
	sb.WriteString("\nWhat they said:\n---\n")
	sb.WriteString(in.WhatTheySaid)
	sb.WriteString("\n---\n")
	if strings.TrimSpace(in.Notes) != "" {
		sb.WriteString("\nNotes:\n---\n")
		sb.WriteString(in.Notes)
		sb.WriteString("\n---\n")
	}
}

// Analyze asks for a structured read of the source text matching the signal
// schema.
func Analyze(in signal.Input) string {
	var sb strings.Builder
	sb.WriteString("Read the message below and describe it. Do not write a reply yet.\n\n")
	writeSource(&sb, in)
	sb.WriteString(`
Only fill detected entities that appear in the text. Use null for anything not stated.
Values, pressures, risks and openings may be cautious inferences as short labels.
do_not_say must include any phrase that would sound salesy to this person.

Schema:
`)
	sb.WriteString(signal.SchemaText())
	sb.WriteString("\n\nReturn only JSON. No markdown fences, no commentary.")
	return sb.String()
}

// AnalyzeRetry follows a failed Analyze attempt. previous may be empty when
// the attempt produced no output.
func AnalyzeRetry(in signal.Input, previous string, problems []string) string {
	var sb strings.Builder
	sb.WriteString("The previous analysis failed validation. Return valid JSON this time.\n\n")
	if len(problems) > 0 {
		sb.WriteString("Problems:\n")
		for _, p := range problems {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		sb.WriteString("\n")
	}
	if strings.TrimSpace(previous) != "" {
		sb.WriteString("Previous output:\n---\n")
		sb.WriteString(previous)
		sb.WriteString("\n---\n\n")
	}
	sb.WriteString(Analyze(in))
	return sb.String()
}

func extractJSON(e signal.Extract) string {
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		// Extract holds only strings, slices and a float.
		panic(fmt.Sprintf("prompt: marshal extract: %v", err))
	}
	return string(b)
}

// Respond asks for the reply itself, grounded in the validated analysis.
func Respond(e signal.Extract, b catalog.Brand) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write a %s reply with intent %q.\n\n", e.Channel, e.Intent)
	sb.WriteString("What they said:\n---\n")
	sb.WriteString(e.RawText)
	sb.WriteString("\n---\n\nAnalysis:\n")
	sb.WriteString(extractJSON(e))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Angle: %s\n", e.RecommendedAngle)
	if len(e.DoNotSay) > 0 {
		fmt.Fprintf(&sb, "Do not say: %s\n", strings.Join(e.DoNotSay, ", "))
	}
	sb.WriteString(LengthGuide(e.Channel))
	sb.WriteString("\n")
	sb.WriteString(linkLine(e.Channel, b))
	sb.WriteString("\nReturn only the reply text.")
	return sb.String()
}

func linkLine(ch signal.Channel, b catalog.Brand) string {
	if ch == signal.ChannelDM {
		return "The link is optional in a direct message."
	}
	return "Include this link exactly: " + b.Link
}

// Repair asks for a full rewrite that fixes every listed failure.
func Repair(previous string, failures []string, e signal.Extract, b catalog.Brand) string {
	var sb strings.Builder
	sb.WriteString("Your previous reply failed these checks:\n")
	for _, f := range failures {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	sb.WriteString("\nPrevious reply:\n---\n")
	sb.WriteString(previous)
	sb.WriteString("\n---\n\nAnalysis:\n")
	sb.WriteString(extractJSON(e))
	sb.WriteString("\n\n")
	sb.WriteString("Rewrite the reply from scratch so that every failure above is fixed. Keep what was specific and true.\n")
	sb.WriteString(LengthGuide(e.Channel))
	sb.WriteString("\n")
	sb.WriteString(linkLine(e.Channel, b))
	sb.WriteString("\nReturn only the reply text.")
	return sb.String()
}
