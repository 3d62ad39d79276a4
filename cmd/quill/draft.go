package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/quill/internal/config"
	"github.com/MikeSquared-Agency/quill/internal/reply"
	"github.com/MikeSquared-Agency/quill/internal/signal"
)

var draftFlags struct {
	channel string
	intent  string
	text    string
	notes   string
	lead    string
}

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Draft one reply and print the result as JSON",
	Example: `  quill draft --channel comment --intent reply --text "Closed 3 deals this week!"
  quill draft --channel dm --intent nurture --text "Thanks for connecting" --notes "met at expo"`,
	Args: cobra.NoArgs,
	RunE: runDraft,
}

func init() {
	f := draftCmd.Flags()
	f.StringVar(&draftFlags.channel, "channel", string(signal.ChannelComment), "comment, dm or followup")
	f.StringVar(&draftFlags.intent, "intent", "", "reply intent")
	f.StringVar(&draftFlags.text, "text", "", "what they said")
	f.StringVar(&draftFlags.notes, "notes", "", "optional context for the writer")
	f.StringVar(&draftFlags.lead, "lead", "", "optional lead ID")
	cobra.CheckErr(draftCmd.MarkFlagRequired("intent"))
	cobra.CheckErr(draftCmd.MarkFlagRequired("text"))
}

func runDraft(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	req := reply.Request{
		Channel:      signal.Channel(draftFlags.channel),
		Intent:       signal.Intent(draftFlags.intent),
		WhatTheySaid: draftFlags.text,
	}
	if draftFlags.notes != "" {
		req.Notes = &draftFlags.notes
	}
	if draftFlags.lead != "" {
		req.LeadID = &draftFlags.lead
	}
	if err := req.Validate(); err != nil {
		return err
	}

	pipeline, err := newPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	res, err := pipeline.Generate(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
