// Package question produces interview questions from the generation service,
// falling back to a static per-persona bank whenever it is unavailable.
package question

import (
	"context"
	"log/slog"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/llm"
	"github.com/ashureev/interview-coach/internal/metrics"
)

// Sampling temperatures per request kind.
const (
	openingTemperature = 0.7
	nextTemperature    = 0.8
	setTemperature     = 0.7
)

// NextInput carries the context for a follow-up question.
type NextInput struct {
	Role              domain.Role
	Persona           domain.Persona
	History           []domain.QA
	Turn              int // 1-based number of the question being generated
	FocusSkills       []string
	RecommendedTopics []string
	MissingSkills     []string
}

// Generator wraps an llm.Generator with prompts and deterministic fallbacks.
// None of its methods return an error.
type Generator struct {
	llm    llm.Generator
	logger *slog.Logger
}

// NewGenerator returns a Generator. A nil llm always falls back.
func NewGenerator(gen llm.Generator, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: gen, logger: logger}
}

// OpeningQuestion returns a broad first question for the interview.
func (g *Generator) OpeningQuestion(ctx context.Context, role domain.Role, persona domain.Persona, focusSkills []string) string {
	text, ok := g.ask(ctx, "opening_question", openingPrompt(role, persona, focusSkills), openingTemperature)
	if !ok {
		return Fallback(persona, 1)
	}
	return text
}

// NextQuestion returns a follow-up adapted to the conversation so far.
func (g *Generator) NextQuestion(ctx context.Context, in NextInput) string {
	text, ok := g.ask(ctx, "next_question", nextPrompt(in), nextTemperature)
	if !ok {
		return Fallback(in.Persona, in.Turn)
	}
	return text
}

// QuestionSet returns n questions generated in one call. A reply that does
// not parse is replaced by the persona bank.
func (g *Generator) QuestionSet(ctx context.Context, role domain.Role, persona domain.Persona, n int) []string {
	if n <= 0 {
		return nil
	}
	var raw string
	if g.llm != nil {
		var err error
		raw, err = g.llm.Generate(ctx, llm.Request{
			Purpose:     "question_set",
			Prompt:      setPrompt(role, persona, n),
			Temperature: setTemperature,
		})
		if err != nil {
			g.logger.Warn("question set generation failed, using fallback bank",
				"persona", persona,
				"error", err)
			metrics.Fallbacks.WithLabelValues("question_set", "transport").Inc()
			return truncate(Bank(persona), n)
		}
	}

	list, perr := ParseQuestionList(raw)
	if perr != nil {
		g.logger.Warn("question set reply rejected, using fallback bank",
			"persona", persona,
			"kind", perr.Kind.String(),
			"error", perr)
		return setFallback(perr.Kind, persona, n)
	}
	return truncate(list, n)
}

// setFallback picks the replacement set for a parse failure.
func setFallback(kind ParseErrorKind, persona domain.Persona, n int) []string {
	metrics.Fallbacks.WithLabelValues("question_set", kind.String()).Inc()
	return truncate(Bank(persona), n)
}

func (g *Generator) ask(ctx context.Context, purpose, prompt string, temperature float32) (string, bool) {
	if g.llm == nil {
		metrics.Fallbacks.WithLabelValues(purpose, "disabled").Inc()
		return "", false
	}
	raw, err := g.llm.Generate(ctx, llm.Request{Purpose: purpose, Prompt: prompt, Temperature: temperature})
	if err != nil {
		g.logger.Warn("question generation failed, using fallback", "purpose", purpose, "error", err)
		metrics.Fallbacks.WithLabelValues(purpose, "transport").Inc()
		return "", false
	}
	text := Clean(raw)
	if text == "" {
		g.logger.Warn("question generation returned empty text, using fallback", "purpose", purpose)
		metrics.Fallbacks.WithLabelValues(purpose, "empty").Inc()
		return "", false
	}
	return text, true
}

func truncate(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}
