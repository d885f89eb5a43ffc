// Package quiz runs standalone timed evaluations: authoring, attempt
// lifecycle, grading at submission and aggregate results.
package quiz

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrAttemptQuotaExceeded rejects a start once the learner used every attempt.
	ErrAttemptQuotaExceeded = errors.New("attempt quota exceeded")
	// ErrInvalidAttemptState rejects a save, submit or review on an attempt
	// that is missing, not owned by the caller or in the wrong state.
	ErrInvalidAttemptState = errors.New("invalid attempt state")
	ErrNotFound            = errors.New("not found")
	// ErrNotPublishable rejects publishing an evaluation without questions.
	ErrNotPublishable = errors.New("evaluation has no questions")
	ErrInvalidInput   = errors.New("invalid evaluation input")
)

// QuestionType is the closed set of question kinds.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	FreeText       QuestionType = "free_text"
	Code           QuestionType = "code"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, FreeText, Code:
		return true
	}
	return false
}

// AutoGraded reports whether answers are graded at submission.
func (t QuestionType) AutoGraded() bool {
	return t == MultipleChoice || t == TrueFalse
}

// Question is one evaluation question.
type Question struct {
	ID            string       `json:"id"`
	Prompt        string       `json:"prompt" validate:"required"`
	Type          QuestionType `json:"type" validate:"required,oneof=multiple_choice true_false free_text code"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Points        int          `json:"points" validate:"min=1"`
}

// Validate checks a question on its own.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("%w: question %s has no prompt", ErrInvalidInput, q.ID)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("%w: question %s has unknown type %q", ErrInvalidInput, q.ID, q.Type)
	}
	if q.Points < 1 {
		return fmt.Errorf("%w: question %s must be worth at least 1 point", ErrInvalidInput, q.ID)
	}
	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %s needs at least 2 options", ErrInvalidInput, q.ID)
		}
		if !slices.Contains(q.Options, q.CorrectAnswer) {
			return fmt.Errorf("%w: question %s correct answer is not an option", ErrInvalidInput, q.ID)
		}
	case TrueFalse:
		if q.CorrectAnswer != "true" && q.CorrectAnswer != "false" {
			return fmt.Errorf("%w: question %s correct answer must be true or false", ErrInvalidInput, q.ID)
		}
	}
	return nil
}

// Evaluation is a standalone quiz. Questions are kept in display order.
type Evaluation struct {
	ID               string     `json:"id"`
	ProgramID        string     `json:"program_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Questions        []Question `json:"questions"`
	PassingScore     int        `json:"passing_score"`
	MaxAttempts      int        `json:"max_attempts"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty"`
	Published        bool       `json:"is_published"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate checks evaluation-level invariants.
func (e Evaluation) Validate() error {
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if e.PassingScore < 0 || e.PassingScore > 100 {
		return fmt.Errorf("%w: passing score %d outside 0..100", ErrInvalidInput, e.PassingScore)
	}
	if e.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidInput)
	}
	if e.TimeLimitMinutes != nil && *e.TimeLimitMinutes < 1 {
		return fmt.Errorf("%w: time limit must be at least 1 minute", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(e.Questions))
	for _, q := range e.Questions {
		if q.ID == "" || seen[q.ID] {
			return fmt.Errorf("%w: question ids must be unique and non-empty", ErrInvalidInput)
		}
		seen[q.ID] = true
		if err := q.Validate(); err != nil {
			return err
		}
	}
	if e.Published && len(e.Questions) == 0 {
		return ErrNotPublishable
	}
	return nil
}

// TotalPoints sums the points of every question.
func (e Evaluation) TotalPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// Question returns the question with the given ID.
func (e Evaluation) Question(id string) (Question, bool) {
	for _, q := range e.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

func (e Evaluation) clone() Evaluation {
	c := e
	c.Questions = make([]Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = slices.Clone(q.Options)
		c.Questions[i] = q
	}
	if e.TimeLimitMinutes != nil {
		v := *e.TimeLimitMinutes
		c.TimeLimitMinutes = &v
	}
	return c
}

// QuestionResult is the frozen automatic outcome of one question.
type QuestionResult struct {
	QuestionID   string `json:"question_id"`
	Answer       string `json:"answer"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"points_earned"`
	PointsMax    int    `json:"points_max"`
	NeedsReview  bool   `json:"needs_review,omitempty"`
}

// Attempt is one learner's try at an evaluation. Everything except
// ManualScores is immutable once SubmittedAt is set.
type Attempt struct {
	ID             string            `json:"id"`
	EvaluationID   string            `json:"evaluation_id"`
	UserID         string            `json:"user_id"`
	AttemptNumber  int               `json:"attempt_number"`
	Answers        map[string]string `json:"answers"`
	StartedAt      time.Time         `json:"started_at"`
	SubmittedAt    *time.Time        `json:"submitted_at,omitempty"`
	Score          int               `json:"score"`
	TotalPoints    int               `json:"total_points"`
	Percentage     int               `json:"percentage"`
	IsPassed       bool              `json:"is_passed"`
	LateSubmission bool              `json:"late_submission"`
	Results        []QuestionResult  `json:"results,omitempty"`
	ManualScores   map[string]int    `json:"manual_scores,omitempty"`
}

// Submitted reports whether the attempt reached its terminal state.
func (a Attempt) Submitted() bool { return a.SubmittedAt != nil }

// EffectivePercentage combines automatic results with reviewer scores. The
// frozen Percentage is left untouched.
func (a Attempt) EffectivePercentage() int {
	if !a.Submitted() {
		return 0
	}
	earned := 0
	for _, r := range a.Results {
		if p, ok := a.ManualScores[r.QuestionID]; ok {
			earned += p
			continue
		}
		earned += r.PointsEarned
	}
	return percentage(earned, a.TotalPoints)
}

func (a Attempt) clone() Attempt {
	c := a
	c.Answers = cloneMap(a.Answers)
	c.ManualScores = cloneMap(a.ManualScores)
	c.Results = slices.Clone(a.Results)
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		c.SubmittedAt = &t
	}
	return c
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
