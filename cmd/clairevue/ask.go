package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nugget/clairevue/internal/events"
	"github.com/nugget/clairevue/internal/models"
	"github.com/nugget/clairevue/internal/render"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, language, args)
		},
	}
	cmd.Flags().StringVarP(&language, "lang", "l", "en", "answer language (ISO 639-1)")
	return cmd
}

// runAsk runs one query through the same orchestrator the server uses,
// including the cache, and prints the final state. Logs go to stderr
// so stdout stays clean for piping.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts *globalOptions, language string, args []string) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)

	st, err := buildStack(cfg, events.New(), logger)
	if err != nil {
		return err
	}
	defer st.store.Close()

	cell, err := st.orch.Run(ctx, models.Request{
		Query:    strings.Join(args, " "),
		Language: language,
	})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if cell == nil {
		return errors.New("ask: query is empty")
	}

	snap, err := cell.Wait(ctx)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap.Value); err != nil {
			return err
		}
	} else {
		printAnswer(stdout, snap.Value)
	}

	if snap.Err != nil {
		return fmt.Errorf("ask: %w", snap.Err)
	}
	return nil
}

// printAnswer writes a human-readable rendering of a final state.
func printAnswer(w io.Writer, st models.State) {
	if st.Answer != "" {
		fmt.Fprintln(w, render.Plain(st.Answer))
	}
	if st.Error != "" {
		fmt.Fprintln(w, st.Error)
	}

	if len(st.Results) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Sources:")
		for i, r := range st.Results {
			fmt.Fprintf(w, "  [%d] %s\n      %s\n", i+1, r.Title, r.URL)
		}
	}

	if len(st.RelatedQuestions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Related:")
		for _, q := range st.RelatedQuestions {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}

	if st.Cached {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "(served from cache)")
	}
}
