package report

import (
	"strings"
	"testing"

	"github.com/ashureev/interview-coach/internal/domain"
)

func rec(q string, c, s, f int) domain.EvaluationRecord {
	return domain.NewEvaluationRecord(q, "answer to "+q, c, s, f, "feedback "+q, "improved "+q)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	st, ok := Aggregate([]domain.EvaluationRecord{rec("a", 3, 3, 3), rec("b", 5, 5, 5)})
	if !ok {
		t.Fatal("expected stats")
	}
	if st.Overall != 4.0 || st.Clarity != 4.0 || st.Specificity != 4.0 || st.Confidence != 4.0 || st.Count != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}

	st, _ = Aggregate([]domain.EvaluationRecord{rec("a", 3, 2, 3), rec("b", 4, 2, 3), rec("c", 4, 3, 3)})
	if st.Clarity != 3.67 || st.Specificity != 2.33 {
		t.Fatalf("unexpected rounding %+v", st)
	}

	if _, ok := Aggregate(nil); ok {
		t.Fatal("empty evaluations must not aggregate")
	}
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	if got := Build(&domain.Session{Finished: true}); got != NoEvaluations {
		t.Fatalf("unexpected report %q", got)
	}
}

func TestBuildContainsOneBlockPerEvaluation(t *testing.T) {
	t.Parallel()

	s := &domain.Session{
		Role:     domain.RoleJuniorDataAnalyst,
		Persona:  domain.PersonaHR,
		Finished: true,
	}
	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		s.Evaluations = append(s.Evaluations, rec(q, 4, 2, 4))
	}
	got := Build(s)

	if n := strings.Count(got, "Improved example answer:"); n != 5 {
		t.Fatalf("expected 5 question blocks, got %d", n)
	}
	for _, want := range []string{
		"Role: Junior Data Analyst",
		"Interviewer style: HR",
		"Questions answered: 5",
		"Clarity: 4.0 / 5",
		"Specificity: 2.0 / 5",
		`Your answer: "answer to q3"`,
		"Overall 3.33/5",
		"You explain your motivations clearly",
		"For technical questions, mention datasets",
		"Review common data-cleaning steps",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, got)
		}
	}
}

func TestListsHaveDefaultsAndCaps(t *testing.T) {
	t.Parallel()

	mid := Stats{Clarity: 3.2, Specificity: 3.2, Confidence: 3.2, Overall: 3.2}
	if got := Strengths(mid); len(got) != 1 || !strings.Contains(got[0], "willingness") {
		t.Fatalf("unexpected default strengths %v", got)
	}
	if got := AreasToImprove(mid, domain.RoleJuniorDataAnalyst); len(got) != 1 || !strings.Contains(got[0], "Continue refining") {
		t.Fatalf("unexpected default areas %v", got)
	}
	if got := NextSteps(mid, domain.RoleJuniorDataAnalyst); len(got) != 1 {
		t.Fatalf("unexpected default next steps %v", got)
	}

	low := Stats{Clarity: 1, Specificity: 1, Confidence: 1, Overall: 1}
	areas := AreasToImprove(low, domain.RoleJuniorDataAnalyst)
	if len(areas) != 3 {
		t.Fatalf("areas must be capped at 3, got %d", len(areas))
	}
	if got := Strengths(low); len(got) != 1 || !strings.Contains(got[0], "comfortable speaking") {
		t.Fatalf("unexpected low strengths %v", got)
	}

	high := Stats{Clarity: 5, Specificity: 5, Confidence: 5, Overall: 5}
	if got := Strengths(high); len(got) != 3 {
		t.Fatalf("expected three strengths, got %v", got)
	}
}

func TestReady(t *testing.T) {
	t.Parallel()

	s := &domain.Session{Finished: true, Evaluations: []domain.EvaluationRecord{rec("a", 3, 3, 3)}}
	if !Ready(s) {
		t.Fatal("expected ready")
	}
	s.Outstanding = []string{"r2"}
	if Ready(s) {
		t.Fatal("outstanding scores must block the report")
	}
	s.Outstanding = nil
	s.ReportSent = true
	if Ready(s) {
		t.Fatal("report must only be sent once")
	}
	if Ready(&domain.Session{Finished: true}) {
		t.Fatal("no evaluations, no report")
	}
}

func TestNum(t *testing.T) {
	t.Parallel()

	for in, want := range map[float64]string{4: "4.0", 2.67: "2.67", 3.5: "3.5", 0: "0.0"} {
		if got := num(in); got != want {
			t.Fatalf("num(%v) = %q, want %q", in, got, want)
		}
	}
}
