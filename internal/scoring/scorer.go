// Package scoring grades interview answers with the generation service.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ashureev/interview-coach/internal/domain"
	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/llm"
	"github.com/ashureev/interview-coach/internal/metrics"
)

const temperature = 0.3

// Default dimension scores used when a reply omits them or cannot be used.
const (
	defaultClarity     = 3
	defaultSpecificity = 2
	defaultConfidence  = 3
)

// Fallback feedback texts.
const (
	TransportFeedback = "Unable to get detailed evaluation. Please ensure your answer includes specific examples and concrete details."
	ParseFeedback     = "Evaluation completed. Focus on adding specific examples and concrete details to your answers."
	missingFeedback   = "No specific feedback provided."
	improveSuffix     = "\n\n(Add specific examples with numbers, tools, and measurable outcomes to improve this answer.)"
)

// Scorer turns a request into a response. It never fails: generation or
// parse problems produce a fixed low-confidence score.
type Scorer struct {
	llm    llm.Generator
	logger *slog.Logger
}

// NewScorer returns a Scorer. A nil generator always uses the fallback.
func NewScorer(gen llm.Generator, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{llm: gen, logger: logger}
}

// Score evaluates req.
func (s *Scorer) Score(ctx context.Context, req evaluation.Request) evaluation.Response {
	if s.llm == nil {
		metrics.Fallbacks.WithLabelValues("scoring", "disabled").Inc()
		return fallback(req, TransportFeedback)
	}
	raw, err := s.llm.Generate(ctx, llm.Request{Purpose: "evaluation", Prompt: prompt(req), Temperature: temperature})
	if err != nil {
		s.logger.Warn("evaluation generation failed, using fallback score", "request_id", req.RequestID, "error", err)
		metrics.Fallbacks.WithLabelValues("scoring", "transport").Inc()
		return fallback(req, TransportFeedback)
	}

	parsed, perr := parse(raw)
	if perr != nil {
		s.logger.Warn("evaluation reply rejected, using fallback score",
			"request_id", req.RequestID,
			"error", perr,
			"raw", truncate(raw, 200))
		metrics.Fallbacks.WithLabelValues("scoring", "parse").Inc()
		return fallback(req, ParseFeedback)
	}

	feedback := parsed.Feedback
	if feedback == "" {
		feedback = missingFeedback
	}
	improved := parsed.ImprovedAnswer
	if improved == "" {
		improved = req.Answer
	}
	return respond(req, parsed.Clarity, parsed.Specificity, parsed.Confidence, feedback, improved)
}

func fallback(req evaluation.Request, feedback string) evaluation.Response {
	return respond(req, defaultClarity, defaultSpecificity, defaultConfidence, feedback, req.Answer+improveSuffix)
}

func respond(req evaluation.Request, clarity, specificity, confidence int, feedback, improved string) evaluation.Response {
	rec := domain.NewEvaluationRecord(req.Question, req.Answer, clarity, specificity, confidence, feedback, improved)
	return evaluation.Response{
		RequestID:      req.RequestID,
		Question:       req.Question,
		Answer:         req.Answer,
		Persona:        req.Persona,
		Role:           req.Role,
		UserIdentity:   req.UserIdentity,
		Clarity:        rec.Clarity,
		Specificity:    rec.Specificity,
		Confidence:     rec.Confidence,
		Overall:        rec.Overall,
		Feedback:       rec.Feedback,
		ImprovedAnswer: rec.ImprovedAnswer,
	}
}

func prompt(req evaluation.Request) string {
	role := req.Role
	if role == "" {
		role = "General"
	}
	persona := req.Persona
	if persona == "" {
		persona = "Standard"
	}
	return fmt.Sprintf(`You are an expert interview coach evaluating a candidate's answer to an interview question.

Context:
- Role: %s
- Interviewer style: %s

Question: %s

Candidate's answer: %s

Evaluate this answer on three dimensions (score each 1-5):
1. Clarity: How clear, well-structured, and easy to understand is the answer?
2. Specificity: How many concrete examples, numbers, metrics, tools, or specific details are included?
3. Confidence: How confident, assertive, and decisive does the candidate sound?

Provide your evaluation in this exact JSON format:
{
    "clarity": <integer 1-5>,
    "specificity": <integer 1-5>,
    "confidence": <integer 1-5>,
    "feedback": "<2-3 sentences of constructive feedback focusing on what to improve>",
    "improved_answer": "<A complete improved version of the answer with specific examples, numbers, and concrete details>"
}

Be direct and honest in your evaluation. If the answer is generic or lacks specifics, point that out clearly.`,
		role, persona, req.Question, req.Answer)
}

// reply is the decoded scorer payload.
type reply struct {
	Clarity        int
	Specificity    int
	Confidence     int
	Feedback       string
	ImprovedAnswer string
}

// rawReply uses pointers so absent fields take the defaults.
type rawReply struct {
	Clarity        *json.Number `json:"clarity"`
	Specificity    *json.Number `json:"specificity"`
	Confidence     *json.Number `json:"confidence"`
	Feedback       *string      `json:"feedback"`
	ImprovedAnswer *string      `json:"improved_answer"`
}

var objectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// parse decodes the first JSON object in raw. Scores may be integers,
// floats or numeric strings; fractional values are truncated.
func parse(raw string) (reply, error) {
	candidate := objectPattern.FindString(raw)
	if candidate == "" {
		candidate = strings.TrimSpace(raw)
	}
	if candidate == "" {
		return reply{}, fmt.Errorf("empty reply")
	}

	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var r rawReply
	if err := dec.Decode(&r); err != nil {
		return reply{}, fmt.Errorf("decode reply: %w", err)
	}

	out := reply{}
	var err error
	if out.Clarity, err = score(r.Clarity, defaultClarity); err != nil {
		return reply{}, fmt.Errorf("clarity: %w", err)
	}
	if out.Specificity, err = score(r.Specificity, defaultSpecificity); err != nil {
		return reply{}, fmt.Errorf("specificity: %w", err)
	}
	if out.Confidence, err = score(r.Confidence, defaultConfidence); err != nil {
		return reply{}, fmt.Errorf("confidence: %w", err)
	}
	if r.Feedback != nil {
		out.Feedback = strings.TrimSpace(*r.Feedback)
	}
	if r.ImprovedAnswer != nil {
		out.ImprovedAnswer = strings.TrimSpace(*r.ImprovedAnswer)
	}
	return out, nil
}

func score(n *json.Number, def int) (int, error) {
	if n == nil {
		return def, nil
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
