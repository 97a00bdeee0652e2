package knowledge

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ashureev/interview-coach/internal/domain"
)

// Topic is a question topic with its priority for a persona.
type Topic struct {
	Name   string
	Weight int64
}

// Requirement is a skill a role asks for, at a level.
type Requirement struct {
	Skill string
	Level string
}

// Mention records a candidate mentioning a skill, with the evidence text.
type Mention struct {
	Skill    string
	Evidence string
}

// SkillGaps compares what a candidate has mentioned with what a role needs.
type SkillGaps struct {
	Mentioned            []string
	Missing              []string
	MissingPrerequisites []string
}

// Reasoner answers domain questions over a Store. All reads are pure.
type Reasoner struct {
	store *Store
}

// NewReasoner wraps s.
func NewReasoner(s *Store) *Reasoner {
	return &Reasoner{store: s}
}

// Store returns the underlying fact store.
func (r *Reasoner) Store() *Store {
	return r.store
}

// FocusSkills returns the skills a persona concentrates on.
func (r *Reasoner) FocusSkills(p domain.Persona) []string {
	return firstBindings(r.store.Query(RelPersonaFocus, string(p), Wildcard))
}

// TopicsForPersona returns up to limit topics by descending weight. Equal
// weights keep insertion order. A limit <= 0 returns every topic.
func (r *Reasoner) TopicsForPersona(p domain.Persona, limit int) []Topic {
	matches := r.store.Query(RelTopicPriority, string(p), Wildcard, Wildcard)
	topics := make([]Topic, 0, len(matches))
	for _, m := range matches {
		w, err := strconv.ParseInt(m.Bindings[1], 10, 64)
		if err != nil {
			continue
		}
		topics = append(topics, Topic{Name: m.Bindings[0], Weight: w})
	}
	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Weight > topics[j].Weight })
	if limit > 0 && len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}

// RoleRequirements returns the skills a role requires.
func (r *Reasoner) RoleRequirements(role domain.Role) []Requirement {
	matches := r.store.Query(RelRoleRequires, string(role), Wildcard, Wildcard)
	out := make([]Requirement, 0, len(matches))
	for _, m := range matches {
		out = append(out, Requirement{Skill: m.Bindings[0], Level: m.Bindings[1]})
	}
	return out
}

// SkillPrerequisites returns the prerequisites of skill.
func (r *Reasoner) SkillPrerequisites(skill string) []string {
	return firstBindings(r.store.Query(RelSkillPrereq, skill, Wildcard))
}

// QuestionSkills returns the skills a catalogued question assesses.
func (r *Reasoner) QuestionSkills(qid string) []string {
	return firstBindings(r.store.Query(RelQuestionAssesses, qid, Wildcard))
}

// FollowupQuestion returns the next question in qid's chain.
func (r *Reasoner) FollowupQuestion(qid string) (string, bool) {
	next := firstBindings(r.store.Query(RelQuestionFollowup, qid, Wildcard))
	if len(next) == 0 {
		return "", false
	}
	return next[0], true
}

// TopicsForSkills returns topics covering any of skills, without duplicates.
func (r *Reasoner) TopicsForSkills(skills []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, skill := range skills {
		for _, m := range r.store.Query(RelTopicCovers, Wildcard, skill) {
			if t := m.Bindings[0]; !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// PersonaSkillsForQuestion returns skills that are both in the persona focus
// and assessed by the question.
func (r *Reasoner) PersonaSkillsForQuestion(p domain.Persona, qid string) []string {
	assessed := toSet(r.QuestionSkills(qid))
	var out []string
	for _, s := range r.FocusSkills(p) {
		if assessed[s] {
			out = append(out, s)
		}
	}
	return out
}

// SuggestNextTopic returns the highest-priority topic not yet covered.
func (r *Reasoner) SuggestNextTopic(p domain.Persona, covered []string) (string, bool) {
	done := toSet(covered)
	for _, t := range r.TopicsForPersona(p, 0) {
		if !done[t.Name] {
			return t.Name, true
		}
	}
	return "", false
}

// AddCandidateSkill records that user mentioned skill.
func (r *Reasoner) AddCandidateSkill(user, skill, evidence string) error {
	_, err := r.store.AddAtom(RelCandidateMentioned, user, skill, evidence)
	return err
}

// CandidateSkills returns every skill mention recorded for user.
func (r *Reasoner) CandidateSkills(user string) []Mention {
	matches := r.store.Query(RelCandidateMentioned, user, Wildcard, Wildcard)
	out := make([]Mention, 0, len(matches))
	for _, m := range matches {
		out = append(out, Mention{Skill: m.Bindings[0], Evidence: m.Bindings[1]})
	}
	return out
}

// AnalyzeSkillGaps compares user's mentions against role's requirements.
func (r *Reasoner) AnalyzeSkillGaps(user string, role domain.Role) SkillGaps {
	var gaps SkillGaps
	mentioned := make(map[string]bool)
	for _, m := range r.CandidateSkills(user) {
		if !mentioned[m.Skill] {
			mentioned[m.Skill] = true
			gaps.Mentioned = append(gaps.Mentioned, m.Skill)
		}
	}

	required := make(map[string]bool)
	for _, req := range r.RoleRequirements(role) {
		required[req.Skill] = true
		if !mentioned[req.Skill] {
			gaps.Missing = append(gaps.Missing, req.Skill)
		}
	}

	seen := make(map[string]bool)
	for _, skill := range gaps.Mentioned {
		for _, p := range r.SkillPrerequisites(skill) {
			if required[p] && !mentioned[p] && !seen[p] {
				seen[p] = true
				gaps.MissingPrerequisites = append(gaps.MissingPrerequisites, p)
			}
		}
	}
	return gaps
}

// DetectSkills returns the skills whose alias phrases appear in text as
// whole words, in fact order and without duplicates.
func (r *Reasoner) DetectSkills(text string) []string {
	normalized := " " + normalizeWords(text) + " "
	var out []string
	seen := make(map[string]bool)
	for _, m := range r.store.Query(RelSkillAlias, Wildcard, Wildcard) {
		skill, phrase := m.Bindings[0], normalizeWords(m.Bindings[1])
		if seen[skill] || phrase == "" {
			continue
		}
		if strings.Contains(normalized, " "+phrase+" ") {
			seen[skill] = true
			out = append(out, skill)
		}
	}
	return out
}

// normalizeWords lowercases s and collapses every run of characters other
// than letters, digits and '/' into a single space.
func normalizeWords(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '/'
	})
	return strings.Join(fields, " ")
}

func firstBindings(ms []Match) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Bindings[0])
	}
	return out
}

func toSet(xs []string) map[string]bool {
	set := make(map[string]bool, len(xs))
	for _, x := range xs {
		set[x] = true
	}
	return set
}
