package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/knowledge"
)

func newFactsCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Query the built-in skill knowledge base",
	}

	relations := &cobra.Command{
		Use:   "relations",
		Short: "List every relation with its fact count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := knowledge.NewDefault()
			if err != nil {
				return err
			}
			s := r.Store()
			for _, rel := range s.Relations() {
				name, arity := splitRelation(rel)
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", rel, len(s.Query(name, wildcards(nil, arity)...)))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total facts: %d\n", s.Count())
			return nil
		},
	}

	query := &cobra.Command{
		Use:   "query <relation> [pattern...]",
		Short: "Print facts matching a pattern",
		Long:  "Print facts of a relation. Pattern arguments match positionally; use " + knowledge.Wildcard + " or omit trailing arguments to match anything.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := knowledge.NewDefault()
			if err != nil {
				return err
			}
			s := r.Store()
			arity := -1
			for _, rel := range s.Relations() {
				if name, n := splitRelation(rel); name == args[0] {
					arity = n
					break
				}
			}
			if arity < 0 {
				return fmt.Errorf("unknown relation %q", args[0])
			}
			if len(args)-1 > arity {
				return fmt.Errorf("relation %s takes %d arguments, got %d", args[0], arity, len(args)-1)
			}
			matches, err := s.Lookup(args[0], wildcards(args[1:], arity)...)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%s(%s)\n", args[0], strings.Join(m.Args, ", "))
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no facts")
			}
			return nil
		},
	}

	topics := &cobra.Command{
		Use:   "topics <persona>",
		Short: "Show a persona's focus skills and topics by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := domain.NormalizePersona(args[0])
			if !ok {
				return fmt.Errorf("unknown persona %q", args[0])
			}
			r, err := knowledge.NewDefault()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "persona: %s\nfocus: %s\n", p, strings.Join(r.FocusSkills(p), ", "))
			for _, t := range r.TopicsForPersona(p, 0) {
				fmt.Fprintf(out, "  %-32s %d\n", t.Name, t.Weight)
			}
			return nil
		},
	}

	cmd.AddCommand(relations, query, topics)
	return cmd
}

// splitRelation parses "name/arity" as returned by Store.Relations.
func splitRelation(rel string) (string, int) {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return rel, 0
	}
	n, err := strconv.Atoi(rel[i+1:])
	if err != nil {
		return rel, 0
	}
	return rel[:i], n
}

// wildcards pads pattern with Wildcard up to arity.
func wildcards(pattern []string, arity int) []string {
	out := make([]string, 0, arity)
	out = append(out, pattern...)
	for len(out) < arity {
		out = append(out, knowledge.Wildcard)
	}
	return out
}
