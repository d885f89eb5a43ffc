package curriculum

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when the primary subject of a read does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDataUnavailable is returned when a required record could not be fetched.
	ErrDataUnavailable = errors.New("data unavailable")
)

// Reader fetches the records progress is computed from. Each call may observe
// a different instant of the underlying store.
type Reader interface {
	GetCourse(ctx context.Context, courseID string) (Course, error)
	ListSubmissions(ctx context.Context, userID string, itemIDs []string) ([]Submission, error)
	ListScores(ctx context.Context, userID, courseID string) ([]ScoreRecord, error)
}

// MemoryStore is an in-memory Reader, filled from the YAML catalog or tests.
type MemoryStore struct {
	mu          sync.RWMutex
	courses     map[string]Course
	submissions map[string]Submission // key: user|item
	scores      []ScoreRecord
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses:     make(map[string]Course),
		submissions: make(map[string]Submission),
	}
}

// PutCourse adds or replaces a course.
func (s *MemoryStore) PutCourse(c Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

// PutSubmission stores the learner's submission for an item, replacing any
// previous one.
func (s *MemoryStore) PutSubmission(sub Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.UserID+"|"+sub.ItemID] = sub
}

// AddScore appends a score record.
func (s *MemoryStore) AddScore(sc ScoreRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, sc)
}

func (s *MemoryStore) GetCourse(_ context.Context, courseID string) (Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[courseID]
	if !ok {
		return Course{}, fmt.Errorf("course %s: %w", courseID, ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) ListSubmissions(_ context.Context, userID string, itemIDs []string) ([]Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Submission
	for _, id := range itemIDs {
		if sub, ok := s.submissions[userID+"|"+id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListScores(_ context.Context, userID, courseID string) ([]ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScoreRecord
	for _, sc := range s.scores {
		if sc.UserID == userID && sc.CourseID == courseID {
			out = append(out, sc)
		}
	}
	return out, nil
}
