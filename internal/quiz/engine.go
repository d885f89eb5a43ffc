package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-formations/internal/platform/metrics"
)

const (
	defaultPassingScore = 60
	defaultMaxAttempts  = 3
)

// SummaryCache caches derived results summaries.
type SummaryCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// EngineConfig holds dependencies for the attempt engine.
type EngineConfig struct {
	Store  Store
	Events EventLogger
	Cache  SummaryCache     // optional
	Clock  func() time.Time // defaults to time.Now
	// OnSubmit receives the recomputed summary after every submission.
	OnSubmit            func(ResultsSummary)
	DefaultPassingScore int // default 60
	DefaultMaxAttempts  int // default 3
}

// Engine runs the evaluation authoring and attempt lifecycle.
type Engine struct {
	store        Store
	events       EventLogger
	cache        SummaryCache
	now          func() time.Time
	onSubmit     func(ResultsSummary)
	passingScore int
	maxAttempts  int

	// genMu guards gens, a per-evaluation counter bumped on every
	// invalidation. Summary uses it to retract a value computed from
	// attempts read before a concurrent submission.
	genMu sync.Mutex
	gens  map[string]uint64
}

// NewEngine creates a new attempt engine.
func NewEngine(cfg EngineConfig) *Engine {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	passing := cfg.DefaultPassingScore
	if passing == 0 {
		passing = defaultPassingScore
	}
	maxAttempts := cfg.DefaultMaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Engine{
		store:        store,
		events:       events,
		cache:        cfg.Cache,
		now:          now,
		onSubmit:     cfg.OnSubmit,
		passingScore: passing,
		maxAttempts:  maxAttempts,
		gens:         make(map[string]uint64),
	}
}

// EvaluationInput carries authored evaluation metadata. Nil fields keep the
// current value on update and take the engine default on create.
type EvaluationInput struct {
	ProgramID        string `json:"program_id"`
	Title            string `json:"title" validate:"required,max=255"`
	Description      string `json:"description"`
	PassingScore     *int   `json:"passing_score" validate:"omitempty,min=0,max=100"`
	MaxAttempts      *int   `json:"max_attempts" validate:"omitempty,min=1"`
	TimeLimitMinutes *int   `json:"time_limit_minutes" validate:"omitempty,min=1"`
}

func (in EvaluationInput) apply(ev *Evaluation) {
	ev.ProgramID = in.ProgramID
	ev.Title = in.Title
	ev.Description = in.Description
	if in.PassingScore != nil {
		ev.PassingScore = *in.PassingScore
	}
	if in.MaxAttempts != nil {
		ev.MaxAttempts = *in.MaxAttempts
	}
	if in.TimeLimitMinutes != nil {
		v := *in.TimeLimitMinutes
		ev.TimeLimitMinutes = &v
	}
}

// CreateEvaluation creates an unpublished evaluation without questions.
func (e *Engine) CreateEvaluation(ctx context.Context, in EvaluationInput) (Evaluation, error) {
	now := e.now()
	ev := Evaluation{
		PassingScore: e.passingScore,
		MaxAttempts:  e.maxAttempts,
		Questions:    []Question{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	in.apply(&ev)
	if err := ev.Validate(); err != nil {
		return Evaluation{}, err
	}
	created, err := e.store.CreateEvaluation(ctx, ev)
	if err != nil {
		return Evaluation{}, fmt.Errorf("create evaluation: %w", err)
	}
	slog.Info("evaluation created", "evaluation_id", created.ID, "title", created.Title)
	return created, nil
}

// UpdateEvaluation replaces the evaluation metadata. Questions and the
// publish flag are left as they are.
func (e *Engine) UpdateEvaluation(ctx context.Context, id string, in EvaluationInput) (Evaluation, error) {
	return e.mutate(ctx, id, func(ev *Evaluation) error {
		in.apply(ev)
		return nil
	})
}

func (e *Engine) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	return e.store.GetEvaluation(ctx, id)
}

// AddQuestion appends a question. An empty ID is generated.
func (e *Engine) AddQuestion(ctx context.Context, evaluationID string, q Question) (Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := e.mutate(ctx, evaluationID, func(ev *Evaluation) error {
		if _, exists := ev.Question(q.ID); exists {
			return fmt.Errorf("%w: question %s already exists", ErrInvalidInput, q.ID)
		}
		ev.Questions = append(ev.Questions, q)
		return nil
	})
	if err != nil {
		return Question{}, err
	}
	return q, nil
}

// UpdateQuestion replaces a question in place.
func (e *Engine) UpdateQuestion(ctx context.Context, evaluationID string, q Question) error {
	_, err := e.mutate(ctx, evaluationID, func(ev *Evaluation) error {
		i := slices.IndexFunc(ev.Questions, func(x Question) bool { return x.ID == q.ID })
		if i < 0 {
			return fmt.Errorf("question %s: %w", q.ID, ErrNotFound)
		}
		ev.Questions[i] = q
		return nil
	})
	return err
}

// DeleteQuestion removes a question. A published evaluation keeps at least one.
func (e *Engine) DeleteQuestion(ctx context.Context, evaluationID, questionID string) error {
	_, err := e.mutate(ctx, evaluationID, func(ev *Evaluation) error {
		i := slices.IndexFunc(ev.Questions, func(x Question) bool { return x.ID == questionID })
		if i < 0 {
			return fmt.Errorf("question %s: %w", questionID, ErrNotFound)
		}
		ev.Questions = slices.Delete(ev.Questions, i, i+1)
		return nil
	})
	return err
}

// ReorderQuestions puts questions in the given order, which must list every
// question exactly once.
func (e *Engine) ReorderQuestions(ctx context.Context, evaluationID string, order []string) error {
	_, err := e.mutate(ctx, evaluationID, func(ev *Evaluation) error {
		if len(order) != len(ev.Questions) {
			return fmt.Errorf("%w: order lists %d of %d questions", ErrInvalidInput, len(order), len(ev.Questions))
		}
		reordered := make([]Question, 0, len(order))
		seen := make(map[string]bool, len(order))
		for _, id := range order {
			q, ok := ev.Question(id)
			if !ok || seen[id] {
				return fmt.Errorf("%w: order is not a permutation of the questions", ErrInvalidInput)
			}
			seen[id] = true
			reordered = append(reordered, q)
		}
		ev.Questions = reordered
		return nil
	})
	return err
}

// Publish makes the evaluation available to learners.
func (e *Engine) Publish(ctx context.Context, id string) (Evaluation, error) {
	ev, err := e.mutate(ctx, id, func(ev *Evaluation) error {
		if len(ev.Questions) == 0 {
			return ErrNotPublishable
		}
		ev.Published = true
		return nil
	})
	if err == nil {
		slog.Info("evaluation published", "evaluation_id", id, "questions", len(ev.Questions))
	}
	return ev, err
}

// Unpublish hides the evaluation from learners. Existing attempts stay.
func (e *Engine) Unpublish(ctx context.Context, id string) (Evaluation, error) {
	return e.mutate(ctx, id, func(ev *Evaluation) error {
		ev.Published = false
		return nil
	})
}

func (e *Engine) mutate(ctx context.Context, id string, fn func(*Evaluation) error) (Evaluation, error) {
	ev, err := e.store.GetEvaluation(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if err := fn(&ev); err != nil {
		return Evaluation{}, err
	}
	ev.UpdatedAt = e.now()
	if err := ev.Validate(); err != nil {
		return Evaluation{}, err
	}
	if err := e.store.UpdateEvaluation(ctx, ev); err != nil {
		return Evaluation{}, fmt.Errorf("update evaluation: %w", err)
	}
	return ev, nil
}

// StartAttempt opens the learner's next attempt with an empty answer map.
func (e *Engine) StartAttempt(ctx context.Context, evaluationID, userID string) (Attempt, error) {
	ev, err := e.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return Attempt{}, err
	}
	if !ev.Published {
		e.reject(evaluationID, "", userID, "unpublished")
		return Attempt{}, fmt.Errorf("evaluation %s is not published: %w", evaluationID, ErrInvalidAttemptState)
	}

	a, err := e.store.CreateAttempt(ctx, evaluationID, userID, ev.MaxAttempts, e.now())
	if err != nil {
		if errors.Is(err, ErrAttemptQuotaExceeded) {
			e.reject(evaluationID, "", userID, "quota")
			slog.Info("attempt quota exceeded",
				"evaluation_id", evaluationID,
				"user_id", userID,
				"max_attempts", ev.MaxAttempts,
			)
		}
		return Attempt{}, err
	}

	metrics.AttemptsStarted.Inc()
	e.logEvent(Event{
		EvaluationID: evaluationID,
		AttemptID:    a.ID,
		UserID:       userID,
		EventType:    EventAttemptStarted,
		Data:         map[string]any{"attempt_number": a.AttemptNumber},
	})
	slog.Info("attempt started",
		"evaluation_id", evaluationID,
		"attempt_id", a.ID,
		"user_id", userID,
		"attempt_number", a.AttemptNumber,
	)
	return a, nil
}

// SaveAnswers replaces the staged answers of an in-progress attempt. Answers
// are not checked until submission.
func (e *Engine) SaveAnswers(ctx context.Context, attemptID, userID string, answers map[string]string) (Attempt, error) {
	a, err := e.ownedInProgress(ctx, attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	if err := e.store.SaveAnswers(ctx, attemptID, answers); err != nil {
		if errors.Is(err, ErrInvalidAttemptState) {
			e.reject(a.EvaluationID, attemptID, userID, "submitted")
		}
		return Attempt{}, err
	}
	a.Answers = cloneMap(answers)
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	e.logEvent(Event{
		EvaluationID: a.EvaluationID,
		AttemptID:    attemptID,
		UserID:       userID,
		EventType:    EventAnswersSaved,
		Data:         map[string]any{"answers": len(a.Answers)},
	})
	return a, nil
}

// SubmitAttempt grades the attempt once and freezes the result. Submissions
// past the time limit are accepted and flagged late.
func (e *Engine) SubmitAttempt(ctx context.Context, attemptID, userID string) (Attempt, error) {
	a, err := e.ownedInProgress(ctx, attemptID, userID)
	if err != nil {
		return Attempt{}, err
	}
	ev, err := e.store.GetEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return Attempt{}, fmt.Errorf("get evaluation for attempt %s: %w", attemptID, err)
	}

	now := e.now()
	results, earned, total := Grade(ev, a.Answers)
	a.Results = results
	a.Score = earned
	a.TotalPoints = total
	a.Percentage = percentage(earned, total)
	a.IsPassed = a.Percentage >= ev.PassingScore
	a.SubmittedAt = &now
	if ev.TimeLimitMinutes != nil {
		limit := time.Duration(*ev.TimeLimitMinutes) * time.Minute
		a.LateSubmission = now.Sub(a.StartedAt) > limit
	}

	if err := e.store.FinalizeAttempt(ctx, a); err != nil {
		if errors.Is(err, ErrInvalidAttemptState) {
			e.reject(a.EvaluationID, attemptID, userID, "submitted")
		}
		return Attempt{}, err
	}

	metrics.AttemptsSubmitted.WithLabelValues(resultLabel(a.IsPassed)).Inc()
	e.logEvent(Event{
		EvaluationID: a.EvaluationID,
		AttemptID:    attemptID,
		UserID:       userID,
		EventType:    EventAttemptSubmitted,
		Data: map[string]any{
			"percentage": a.Percentage,
			"is_passed":  a.IsPassed,
			"late":       a.LateSubmission,
		},
	})
	slog.Info("attempt submitted",
		"evaluation_id", a.EvaluationID,
		"attempt_id", attemptID,
		"user_id", userID,
		"percentage", a.Percentage,
		"is_passed", a.IsPassed,
		"late", a.LateSubmission,
	)

	e.invalidate(ctx, a.EvaluationID)
	if e.onSubmit != nil {
		if s, err := e.Summary(ctx, a.EvaluationID); err == nil {
			e.onSubmit(s)
		} else {
			slog.Warn("summary refresh failed", "evaluation_id", a.EvaluationID, "error", err)
		}
	}
	return a, nil
}

// ReviewAnswer records a reviewer's score for a free-text or code question
// of a submitted attempt. The automatic result stays as it was.
func (e *Engine) ReviewAnswer(ctx context.Context, attemptID, questionID string, points int) (Attempt, error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrInvalidAttemptState)
		}
		return Attempt{}, err
	}
	if !a.Submitted() {
		return Attempt{}, fmt.Errorf("attempt %s is not submitted: %w", attemptID, ErrInvalidAttemptState)
	}
	ev, err := e.store.GetEvaluation(ctx, a.EvaluationID)
	if err != nil {
		return Attempt{}, fmt.Errorf("get evaluation for attempt %s: %w", attemptID, err)
	}
	q, ok := ev.Question(questionID)
	if !ok {
		return Attempt{}, fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}
	if q.Type.AutoGraded() {
		return Attempt{}, fmt.Errorf("%w: question %s is graded automatically", ErrInvalidInput, questionID)
	}
	if points < 0 || points > q.Points {
		return Attempt{}, fmt.Errorf("%w: points must be within 0..%d", ErrInvalidInput, q.Points)
	}

	if err := e.store.SetManualScore(ctx, attemptID, questionID, points); err != nil {
		return Attempt{}, err
	}
	if a.ManualScores == nil {
		a.ManualScores = map[string]int{}
	}
	a.ManualScores[questionID] = points

	e.logEvent(Event{
		EvaluationID: a.EvaluationID,
		AttemptID:    attemptID,
		UserID:       a.UserID,
		EventType:    EventAnswerReviewed,
		Data:         map[string]any{"question_id": questionID, "points": points},
	})
	e.invalidate(ctx, a.EvaluationID)
	return a, nil
}

// History is a learner's attempts at one evaluation.
type History struct {
	EvaluationID string    `json:"evaluation_id"`
	UserID       string    `json:"user_id"`
	Attempts     []Attempt `json:"attempts"`
	Remaining    int       `json:"remaining_attempts"`
	Best         *Attempt  `json:"best,omitempty"`
}

// UserAttempts lists the learner's attempts in attempt-number order.
func (e *Engine) UserAttempts(ctx context.Context, evaluationID, userID string) (History, error) {
	ev, err := e.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return History{}, err
	}
	attempts, err := e.store.ListUserAttempts(ctx, evaluationID, userID)
	if err != nil {
		return History{}, fmt.Errorf("list attempts: %w", err)
	}
	h := History{
		EvaluationID: evaluationID,
		UserID:       userID,
		Attempts:     attempts,
		Remaining:    max(ev.MaxAttempts-len(attempts), 0),
	}
	if best := BestPerLearner(attempts); len(best) == 1 {
		h.Best = &best[0]
	}
	return h, nil
}

// Attempts lists every attempt of an evaluation.
func (e *Engine) Attempts(ctx context.Context, evaluationID string) ([]Attempt, error) {
	if _, err := e.store.GetEvaluation(ctx, evaluationID); err != nil {
		return nil, err
	}
	return e.store.ListAttempts(ctx, evaluationID)
}

// Summary returns the results summary, from cache when available.
func (e *Engine) Summary(ctx context.Context, evaluationID string) (ResultsSummary, error) {
	key := summaryKey(evaluationID)
	if e.cache != nil {
		var s ResultsSummary
		hit, err := e.cache.GetJSON(ctx, key, &s)
		if err != nil {
			slog.Warn("summary cache read failed", "evaluation_id", evaluationID, "error", err)
		}
		if hit {
			return s, nil
		}
	}

	gen := e.generation(evaluationID)
	attempts, err := e.Attempts(ctx, evaluationID)
	if err != nil {
		return ResultsSummary{}, err
	}
	s := Summarize(evaluationID, attempts)

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, s); err != nil {
			slog.Warn("summary cache write failed", "evaluation_id", evaluationID, "error", err)
		}
		// An invalidation that ran after the read may have deleted the key
		// before the write above landed.
		if e.generation(evaluationID) != gen {
			if err := e.cache.Delete(ctx, key); err != nil {
				slog.Warn("summary cache retract failed", "evaluation_id", evaluationID, "error", err)
			}
		}
	}
	return s, nil
}

// BestPercentages returns the learner's best submitted percentage for each
// evaluation ID that has one. Unknown IDs are skipped.
func (e *Engine) BestPercentages(ctx context.Context, userID string, evaluationIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range evaluationIDs {
		attempts, err := e.store.ListUserAttempts(ctx, id, userID)
		if err != nil {
			return nil, fmt.Errorf("list attempts for %s: %w", id, err)
		}
		if best := BestPerLearner(attempts); len(best) == 1 {
			out[id] = float64(best[0].Percentage)
		}
	}
	return out, nil
}

// ownedInProgress loads an attempt the caller may still change. A missing
// attempt is an invalid state rather than a lookup failure.
func (e *Engine) ownedInProgress(ctx context.Context, attemptID, userID string) (Attempt, error) {
	a, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.reject("", attemptID, userID, "missing")
			return Attempt{}, fmt.Errorf("attempt %s: %w", attemptID, ErrInvalidAttemptState)
		}
		return Attempt{}, err
	}
	if a.UserID != userID {
		e.reject(a.EvaluationID, attemptID, userID, "not_owner")
		return Attempt{}, fmt.Errorf("attempt %s does not belong to caller: %w", attemptID, ErrInvalidAttemptState)
	}
	if a.Submitted() {
		e.reject(a.EvaluationID, attemptID, userID, "submitted")
		return Attempt{}, fmt.Errorf("attempt %s already submitted: %w", attemptID, ErrInvalidAttemptState)
	}
	return a, nil
}

func (e *Engine) reject(evaluationID, attemptID, userID, reason string) {
	metrics.AttemptsRejected.WithLabelValues(reason).Inc()
	if evaluationID == "" {
		return
	}
	e.logEvent(Event{
		EvaluationID: evaluationID,
		AttemptID:    attemptID,
		UserID:       userID,
		EventType:    EventAttemptRejected,
		Data:         map[string]any{"reason": reason},
	})
}

func (e *Engine) logEvent(ev Event) {
	if err := e.events.LogEvent(ev); err != nil {
		slog.Error("failed to log attempt event", "type", ev.EventType, "error", err)
	}
}

func (e *Engine) invalidate(ctx context.Context, evaluationID string) {
	if e.cache == nil {
		return
	}
	e.genMu.Lock()
	e.gens[evaluationID]++
	e.genMu.Unlock()
	if err := e.cache.Delete(ctx, summaryKey(evaluationID)); err != nil {
		slog.Warn("summary cache invalidation failed", "evaluation_id", evaluationID, "error", err)
	}
}

func (e *Engine) generation(evaluationID string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.gens[evaluationID]
}

func summaryKey(evaluationID string) string { return "summary:" + evaluationID }

func resultLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
