// Package evaluation dispatches answers to the external scorer and maps the
// scores it returns back to the session that asked for them.
package evaluation

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/ashureev/interview-coach/internal/domain"
)

// Request asks the scorer to evaluate one answer.
type Request struct {
	RequestID    string `json:"request_id" validate:"required"`
	Question     string `json:"question" validate:"required"`
	Answer       string `json:"answer" validate:"required"`
	Persona      string `json:"persona,omitempty"`
	Role         string `json:"role,omitempty"`
	UserIdentity string `json:"user_identity" validate:"required"`
}

// Response is the scorer's answer. RequestID may be empty for scorers that
// predate per-request correlation.
type Response struct {
	RequestID    string `json:"request_id,omitempty"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	Persona      string `json:"persona,omitempty"`
	Role         string `json:"role,omitempty"`
	UserIdentity string `json:"user_identity" validate:"required"`

	Clarity        int     `json:"clarity"`
	Specificity    int     `json:"specificity"`
	Confidence     int     `json:"confidence"`
	Overall        float64 `json:"overall_score"`
	Feedback       string  `json:"feedback"`
	ImprovedAnswer string  `json:"improved_answer"`
}

// Record converts the response into a clamped session record. Overall is
// recomputed from the clamped dimensions.
func (r Response) Record() domain.EvaluationRecord {
	rec := domain.NewEvaluationRecord(r.Question, r.Answer, r.Clarity, r.Specificity, r.Confidence, r.Feedback, r.ImprovedAnswer)
	rec.RequestID = r.RequestID
	return rec
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks required fields.
func (r Request) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		return fmt.Errorf("invalid evaluation request: %w", err)
	}
	return nil
}

// Validate checks required fields.
func (r Response) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		return fmt.Errorf("invalid evaluation response: %w", err)
	}
	return nil
}
