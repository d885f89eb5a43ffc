package quiz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists evaluations and attempts. Implementations enforce the
// attempt quota and submission immutability at write time.
type Store interface {
	CreateEvaluation(ctx context.Context, ev Evaluation) (Evaluation, error)
	// UpdateEvaluation replaces the stored evaluation, questions included.
	UpdateEvaluation(ctx context.Context, ev Evaluation) error
	GetEvaluation(ctx context.Context, id string) (Evaluation, error)

	// CreateAttempt atomically counts the learner's attempts and inserts the
	// next one, failing with ErrAttemptQuotaExceeded once maxAttempts exist.
	CreateAttempt(ctx context.Context, evaluationID, userID string, maxAttempts int, startedAt time.Time) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// SaveAnswers replaces the answer map of an unsubmitted attempt.
	SaveAnswers(ctx context.Context, attemptID string, answers map[string]string) error
	// FinalizeAttempt freezes the graded attempt. It fails with
	// ErrInvalidAttemptState when the attempt was already submitted.
	FinalizeAttempt(ctx context.Context, a Attempt) error
	// SetManualScore records a reviewer score on a submitted attempt.
	SetManualScore(ctx context.Context, attemptID, questionID string, points int) error
	ListAttempts(ctx context.Context, evaluationID string) ([]Attempt, error)
	ListUserAttempts(ctx context.Context, evaluationID, userID string) ([]Attempt, error)
}

// MemoryStore is an in-memory Store for tests and catalog-only deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	evaluations map[string]Evaluation
	attempts    map[string]Attempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evaluations: make(map[string]Evaluation),
		attempts:    make(map[string]Attempt),
	}
}

func (s *MemoryStore) CreateEvaluation(_ context.Context, ev Evaluation) (Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if _, exists := s.evaluations[ev.ID]; exists {
		return Evaluation{}, fmt.Errorf("%w: evaluation %s already exists", ErrInvalidInput, ev.ID)
	}
	if ev.Questions == nil {
		ev.Questions = []Question{}
	}
	s.evaluations[ev.ID] = ev.clone()
	return ev, nil
}

func (s *MemoryStore) UpdateEvaluation(_ context.Context, ev Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.evaluations[ev.ID]; !ok {
		return fmt.Errorf("evaluation %s: %w", ev.ID, ErrNotFound)
	}
	s.evaluations[ev.ID] = ev.clone()
	return nil
}

func (s *MemoryStore) GetEvaluation(_ context.Context, id string) (Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.evaluations[id]
	if !ok {
		return Evaluation{}, fmt.Errorf("evaluation %s: %w", id, ErrNotFound)
	}
	return ev.clone(), nil
}

func (s *MemoryStore) CreateAttempt(_ context.Context, evaluationID, userID string, maxAttempts int, startedAt time.Time) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := 0
	for _, a := range s.attempts {
		if a.EvaluationID == evaluationID && a.UserID == userID {
			used++
		}
	}
	if used >= maxAttempts {
		return Attempt{}, ErrAttemptQuotaExceeded
	}

	a := Attempt{
		ID:            uuid.NewString(),
		EvaluationID:  evaluationID,
		UserID:        userID,
		AttemptNumber: used + 1,
		Answers:       map[string]string{},
		StartedAt:     startedAt,
	}
	s.attempts[a.ID] = a
	return a.clone(), nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return a.clone(), nil
}

func (s *MemoryStore) SaveAnswers(_ context.Context, attemptID string, answers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok || a.Submitted() {
		return ErrInvalidAttemptState
	}
	a.Answers = cloneMap(answers)
	if a.Answers == nil {
		a.Answers = map[string]string{}
	}
	s.attempts[attemptID] = a
	return nil
}

func (s *MemoryStore) FinalizeAttempt(_ context.Context, graded Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[graded.ID]
	if !ok || a.Submitted() || graded.SubmittedAt == nil {
		return ErrInvalidAttemptState
	}
	a.SubmittedAt = graded.SubmittedAt
	a.Score = graded.Score
	a.TotalPoints = graded.TotalPoints
	a.Percentage = graded.Percentage
	a.IsPassed = graded.IsPassed
	a.LateSubmission = graded.LateSubmission
	a.Results = graded.Results
	s.attempts[a.ID] = a.clone()
	return nil
}

func (s *MemoryStore) SetManualScore(_ context.Context, attemptID, questionID string, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[attemptID]
	if !ok || !a.Submitted() {
		return ErrInvalidAttemptState
	}
	a.ManualScores = cloneMap(a.ManualScores)
	if a.ManualScores == nil {
		a.ManualScores = map[string]int{}
	}
	a.ManualScores[questionID] = points
	s.attempts[attemptID] = a
	return nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, evaluationID string) ([]Attempt, error) {
	return s.list(func(a Attempt) bool { return a.EvaluationID == evaluationID }), nil
}

func (s *MemoryStore) ListUserAttempts(_ context.Context, evaluationID, userID string) ([]Attempt, error) {
	return s.list(func(a Attempt) bool {
		return a.EvaluationID == evaluationID && a.UserID == userID
	}), nil
}

func (s *MemoryStore) list(keep func(Attempt) bool) []Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Attempt{}
	for _, a := range s.attempts {
		if keep(a) {
			out = append(out, a.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out
}
