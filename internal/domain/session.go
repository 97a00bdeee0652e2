// Package domain contains the core types of the interview coach.
package domain

import "math"

// Score bounds for every evaluation dimension.
const (
	MinScore = 1
	MaxScore = 5
)

// QA is one question/answer exchange used as generation context.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// EvaluationRecord is the immutable score of a single answer.
type EvaluationRecord struct {
	RequestID      string  `json:"request_id,omitempty"`
	Question       string  `json:"question"`
	Answer         string  `json:"answer"`
	Clarity        int     `json:"clarity"`
	Specificity    int     `json:"specificity"`
	Confidence     int     `json:"confidence"`
	Overall        float64 `json:"overall_score"`
	Feedback       string  `json:"feedback"`
	ImprovedAnswer string  `json:"improved_answer"`
}

// NewEvaluationRecord clamps the three dimensions into range and derives the
// overall score from them.
func NewEvaluationRecord(question, answer string, clarity, specificity, confidence int, feedback, improved string) EvaluationRecord {
	c := ClampScore(clarity)
	s := ClampScore(specificity)
	f := ClampScore(confidence)
	return EvaluationRecord{
		Question:       question,
		Answer:         answer,
		Clarity:        c,
		Specificity:    s,
		Confidence:     f,
		Overall:        Round2(float64(c+s+f) / 3.0),
		Feedback:       feedback,
		ImprovedAnswer: improved,
	}
}

// ClampScore bounds v to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Session is the per-key dialogue state. The zero value is the fresh default
// session a user starts from (and returns to on restart).
type Session struct {
	Role                Role               `json:"role,omitempty"`
	Persona             Persona            `json:"persona,omitempty"`
	QuestionIndex       int                `json:"question_index"`
	Finished            bool               `json:"finished"`
	Questions           []string           `json:"questions,omitempty"`
	Answers             []string           `json:"answers,omitempty"`
	Evaluations         []EvaluationRecord `json:"evaluations,omitempty"`
	ConversationHistory []QA               `json:"conversation_history,omitempty"`

	// Outstanding holds request ids of dispatched evaluations that have not
	// been received yet.
	Outstanding []string `json:"outstanding,omitempty"`
	ReportSent  bool     `json:"report_sent,omitempty"`
}

// IsPristine reports whether nothing has happened in the session yet.
func (s *Session) IsPristine() bool {
	return s.Role == "" && s.Persona == "" && len(s.Answers) == 0 && !s.Finished
}

// ResetInterview clears the Q&A state while keeping role and persona.
func (s *Session) ResetInterview() {
	s.QuestionIndex = 0
	s.Finished = false
	s.Questions = nil
	s.Answers = nil
	s.Evaluations = nil
	s.ConversationHistory = nil
	s.Outstanding = nil
	s.ReportSent = false
}

// CurrentQuestion returns the question awaiting an answer, if any.
func (s *Session) CurrentQuestion() (string, bool) {
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(s.Questions) {
		return "", false
	}
	return s.Questions[s.QuestionIndex], true
}

// AddOutstanding registers a dispatched evaluation.
func (s *Session) AddOutstanding(requestID string) {
	s.Outstanding = append(s.Outstanding, requestID)
}

// TakeOutstanding removes requestID from the outstanding set. It reports
// false when the id is unknown, which marks the response as stale.
func (s *Session) TakeOutstanding(requestID string) bool {
	for i, id := range s.Outstanding {
		if id == requestID {
			s.Outstanding = append(s.Outstanding[:i], s.Outstanding[i+1:]...)
			if len(s.Outstanding) == 0 {
				s.Outstanding = nil
			}
			return true
		}
	}
	return false
}

// TakeOldestOutstanding pops the oldest outstanding id, for responses that
// carry no request id.
func (s *Session) TakeOldestOutstanding() (string, bool) {
	if len(s.Outstanding) == 0 {
		return "", false
	}
	id := s.Outstanding[0]
	s.Outstanding = s.Outstanding[1:]
	if len(s.Outstanding) == 0 {
		s.Outstanding = nil
	}
	return id, true
}

// AwaitingScores reports whether evaluations are still in flight.
func (s *Session) AwaitingScores() bool {
	return len(s.Outstanding) > 0
}
