package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/interview"
	"github.com/ashureev/interview-coach/internal/report"
	"github.com/ashureev/interview-coach/internal/store"
)

var errNoLister = errors.New("store backend cannot enumerate keys")

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and prune stored sessions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored session keys with their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(func(kv store.KV) error {
				lister, ok := kv.(store.Lister)
				if !ok {
					return errNoLister
				}
				keys, err := lister.Keys(cmd.Context(), "session:")
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, key := range keys {
					var s domain.Session
					if _, err := store.GetJSON(cmd.Context(), kv, key, &s); err != nil {
						fmt.Fprintf(out, "%s\tunreadable: %v\n", key, err)
						continue
					}
					fmt.Fprintf(out, "%s\t%s\n", key, summary(&s))
				}
				if len(keys) == 0 {
					fmt.Fprintln(out, "no sessions")
				}
				return nil
			})
		},
	}

	var asReport bool
	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Print a stored session",
		Long:  "Print a stored session as JSON. Keys without the session: prefix are treated as sender ids.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !strings.HasPrefix(key, "session:") {
				key = domain.SenderSessionKey(key)
			}
			return a.withStore(func(kv store.KV) error {
				var s domain.Session
				found, err := store.GetJSON(cmd.Context(), kv, key, &s)
				if err != nil {
					return fmt.Errorf("load %s: %w", key, err)
				}
				if !found {
					return fmt.Errorf("session %s not found", key)
				}
				if asReport {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), report.Build(&s))
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
	show.Flags().BoolVar(&asReport, "report", false, "render the final report instead of raw state")

	var ttl time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete session state idle longer than --ttl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			return a.withStore(func(kv store.KV) error {
				lister, ok := kv.(store.Lister)
				if !ok {
					return errNoLister
				}
				n, err := interview.PruneState(cmd.Context(), lister, ttl)
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d keys\n", n)
				return err
			})
		},
	}
	prune.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "idle time after which state is deleted")

	cmd.AddCommand(list, show, prune)
	return cmd
}

func summary(s *domain.Session) string {
	persona := string(s.Persona)
	if persona == "" {
		persona = "-"
	}
	state := "in progress"
	switch {
	case s.ReportSent:
		state = "reported"
	case s.Finished && s.AwaitingScores():
		state = fmt.Sprintf("awaiting %d scores", len(s.Outstanding))
	case s.Finished:
		state = "finished"
	case s.IsPristine():
		state = "new"
	}
	return fmt.Sprintf("persona=%s answers=%d evaluations=%d %s", persona, len(s.Answers), len(s.Evaluations), state)
}
