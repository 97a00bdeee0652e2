package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/llm"
	"github.com/ashureev/interview-coach/internal/question"
)

func newQuestionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Preview generated interview questions",
	}

	var (
		persona string
		role    string
		n       int
		offline bool
	)
	preview := &cobra.Command{
		Use:   "preview",
		Short: "Generate a question set for a persona",
		Long:  "Generate a question set in one completion call. Without an API key, or with --offline, the persona's fallback bank is printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, ok := domain.NormalizePersona(persona)
			if !ok {
				return fmt.Errorf("unknown persona %q", persona)
			}
			r, ok := domain.NormalizeRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			if n <= 0 {
				return fmt.Errorf("--n must be positive")
			}

			var gen llm.Generator
			if !offline && a.llm.APIKey != "" {
				client, err := llm.NewClient(llm.Config{
					BaseURL: a.llm.BaseURL,
					APIKey:  a.llm.APIKey,
					Model:   a.llm.Model,
					Timeout: a.llm.Timeout,
				}, slog.Default())
				if err != nil {
					return err
				}
				gen = client
			}

			questions := question.NewGenerator(gen, slog.Default()).QuestionSet(cmd.Context(), r, p, n)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s interviewer (%s)\n", p, question.Description(p))
			for i, q := range questions {
				fmt.Fprintf(out, "%d. %s\n", i+1, q)
			}
			return nil
		},
	}
	preview.Flags().StringVar(&persona, "persona", string(domain.PersonaHR), "interviewer persona")
	preview.Flags().StringVar(&role, "role", string(domain.DefaultRole()), "role being interviewed for")
	preview.Flags().IntVar(&n, "n", 5, "number of questions")
	preview.Flags().BoolVar(&offline, "offline", false, "skip the completion call")

	cmd.AddCommand(preview)
	return cmd
}
