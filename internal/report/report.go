// Package report aggregates evaluation scores into the end-of-interview
// summary.
package report

import (
	"fmt"
	"strings"

	"github.com/ashureev/interview-coach/internal/domain"
)

// NoEvaluations is sent when an interview ends without any score.
const NoEvaluations = "Interview complete. No evaluations available."

// Thresholds applied to dimension averages.
const (
	strongThreshold = 3.5
	weakThreshold   = 3.0
	maxListItems    = 3
)

// Stats are the rounded session averages.
type Stats struct {
	Count       int
	Clarity     float64
	Specificity float64
	Confidence  float64
	Overall     float64
}

// Aggregate computes per-dimension means and the mean overall score. It
// reports false for an empty slice.
func Aggregate(evals []domain.EvaluationRecord) (Stats, bool) {
	n := len(evals)
	if n == 0 {
		return Stats{}, false
	}
	var c, s, f, o float64
	for _, e := range evals {
		c += float64(e.Clarity)
		s += float64(e.Specificity)
		f += float64(e.Confidence)
		o += e.Overall
	}
	d := float64(n)
	return Stats{
		Count:       n,
		Clarity:     domain.Round2(c / d),
		Specificity: domain.Round2(s / d),
		Confidence:  domain.Round2(f / d),
		Overall:     domain.Round2(o / d),
	}, true
}

// Ready reports whether the final report should be emitted now: the
// interview is finished, no score is outstanding, at least one score exists
// and the report has not been sent.
func Ready(s *domain.Session) bool {
	return s.Finished && !s.AwaitingScores() && len(s.Evaluations) > 0 && !s.ReportSent
}

// Strengths lists up to three strengths derived from st.
func Strengths(st Stats) []string {
	var out []string
	if st.Clarity >= strongThreshold {
		out = appendUnique(out, "You explain your motivations clearly and stay on topic.")
	}
	if st.Specificity >= strongThreshold {
		out = appendUnique(out, "You use concrete examples and specific details effectively.")
	}
	if st.Confidence >= strongThreshold {
		out = appendUnique(out, "You generally sound confident when talking about your background.")
	}
	if len(out) == 0 {
		if st.Overall >= weakThreshold {
			out = append(out, "You show willingness to work hard and take responsibility.")
		} else {
			out = append(out, "You're comfortable speaking about yourself and stay reasonably on topic.")
		}
	}
	return capList(out)
}

// AreasToImprove lists up to three improvement areas derived from st.
func AreasToImprove(st Stats, role domain.Role) []string {
	var out []string
	if st.Clarity < weakThreshold {
		out = appendUnique(out, "Structure your answers more clearly using situation → action → result.")
	}
	if st.Specificity < weakThreshold {
		out = appendUnique(out, "Your examples are often too general. Add numbers, tools, and concrete outcomes.")
	}
	if st.Confidence < weakThreshold {
		out = appendUnique(out, "Use more direct language ('I led', 'I delivered') and avoid apologetic phrasing.")
	}
	if role == domain.RoleJuniorDataAnalyst && st.Specificity < weakThreshold {
		out = appendUnique(out, "For technical questions, mention datasets, metrics, and specific steps you took.")
	}
	if len(out) == 0 {
		out = append(out, "Continue refining your interview responses with more specific examples.")
	}
	return capList(out)
}

// NextSteps lists the closing recommendations.
func NextSteps(st Stats, role domain.Role) []string {
	var out []string
	if st.Specificity < weakThreshold {
		out = append(out, "Practise giving 1–2 quantified examples for each answer.")
	}
	if st.Specificity < weakThreshold || st.Clarity < weakThreshold {
		out = append(out, "Focus especially on making your answers more specific and measurable.")
	}
	if role == domain.RoleJuniorDataAnalyst && st.Specificity < weakThreshold {
		out = append(out, "Review common data-cleaning steps for junior analyst interviews.")
	}
	if len(out) == 0 {
		out = append(out, "Review your feedback and practice the improved answer examples.")
	}
	return out
}

// Build renders the report for s. It returns NoEvaluations when nothing has
// been scored.
func Build(s *domain.Session) string {
	st, ok := Aggregate(s.Evaluations)
	if !ok {
		return NoEvaluations
	}

	var b strings.Builder
	b.WriteString("✅ Interview complete – here's your detailed report\n\n")
	fmt.Fprintf(&b, "Role: %s\n\n", display(string(s.Role)))
	fmt.Fprintf(&b, "Interviewer style: %s\n\n", display(string(s.Persona)))
	fmt.Fprintf(&b, "Questions answered: %d\n\n", st.Count)
	b.WriteString("Average scores this session\n\n")
	fmt.Fprintf(&b, "Clarity: %s / 5\n", num(st.Clarity))
	fmt.Fprintf(&b, "Specificity: %s / 5\n", num(st.Specificity))
	fmt.Fprintf(&b, "Confidence: %s / 5\n", num(st.Confidence))
	fmt.Fprintf(&b, "Overall: %s / 5\n\n", num(st.Overall))

	b.WriteString("📋 Detailed Question-by-Question Feedback\n\n")
	for i, e := range s.Evaluations {
		fmt.Fprintf(&b, "Question %d: %s\n\n", i+1, orDefault(e.Question, "N/A"))
		fmt.Fprintf(&b, "Your answer: \"%s\"\n\n", orDefault(e.Answer, "N/A"))
		fmt.Fprintf(&b, "Scores: Clarity %d/5, Specificity %d/5, Confidence %d/5, Overall %s/5\n\n",
			e.Clarity, e.Specificity, e.Confidence, num(e.Overall))
		fmt.Fprintf(&b, "Feedback: %s\n\n", orDefault(e.Feedback, "No feedback available."))
		fmt.Fprintf(&b, "Improved example answer:\n%s\n\n", orDefault(e.ImprovedAnswer, "No improved answer available."))
		b.WriteString("---\n\n")
	}

	b.WriteString("💪 Strengths\n\n")
	for _, line := range Strengths(st) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n🎯 Key areas to improve\n\n")
	for _, line := range AreasToImprove(st, s.Role) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n📝 Next steps\n\n")
	for _, line := range NextSteps(st, s.Role) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\nType 'restart' to try another interview with a different interviewer style.")
	return b.String()
}

// num prints a score without trailing zeros beyond one decimal (4 → 4.0,
// 2.67 → 2.67).
func num(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func display(s string) string {
	return orDefault(s, "N/A")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func capList(list []string) []string {
	if len(list) > maxListItems {
		return list[:maxListItems]
	}
	return list
}
