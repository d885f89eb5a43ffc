// Package curriculum models courses, modules and learning items together with
// the learner records (submissions, game scores) used to decide completion.
package curriculum

import (
	"fmt"
	"time"
)

// ItemKind identifies what a learning item is.
type ItemKind string

const (
	KindDocument      ItemKind = "document"
	KindSlide         ItemKind = "slide"
	KindExercise      ItemKind = "exercise"
	KindActivity      ItemKind = "activity"
	KindPracticalWork ItemKind = "tp"
	KindGame          ItemKind = "game"
)

// Valid reports whether k is one of the known item kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindDocument, KindSlide, KindExercise, KindActivity, KindPracticalWork, KindGame:
		return true
	}
	return false
}

// Item is a single piece of content or graded activity within a module.
type Item struct {
	ID        string   `json:"id" yaml:"id"`
	ModuleID  string   `json:"module_id" yaml:"module_id"`
	Title     string   `json:"title" yaml:"title"`
	Kind      ItemKind `json:"type" yaml:"type"`
	Position  int      `json:"position" yaml:"position"`
	Published bool     `json:"published" yaml:"published"`
}

// Module is an ordered sequence of items.
type Module struct {
	ID       string `json:"id" yaml:"id"`
	CourseID string `json:"course_id" yaml:"course_id"`
	Title    string `json:"title" yaml:"title"`
	Position int    `json:"position" yaml:"position"`
	Items    []Item `json:"items" yaml:"items"`
}

// Course is an ordered sequence of modules.
type Course struct {
	ID      string   `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Modules []Module `json:"modules" yaml:"modules"`
}

// FindItem looks an item up across all modules of the course.
func (c Course) FindItem(id string) (Item, bool) {
	for _, m := range c.Modules {
		for _, it := range m.Items {
			if it.ID == id {
				return it, true
			}
		}
	}
	return Item{}, false
}

// ItemIDs returns the IDs of every item in the course, published or not.
func (c Course) ItemIDs() []string {
	var ids []string
	for _, m := range c.Modules {
		for _, it := range m.Items {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
	StatusGraded    SubmissionStatus = "graded"
)

func (s SubmissionStatus) rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSubmitted:
		return 1
	case StatusGraded:
		return 2
	}
	return -1
}

// CanTransition reports whether a submission may move from one status to
// another. Transitions are strictly draft -> submitted -> graded.
func CanTransition(from, to SubmissionStatus) bool {
	return from.rank() >= 0 && to.rank() == from.rank()+1
}

// Submission is a learner's response to an exercise-like item.
type Submission struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	ItemID      string           `json:"item_id"`
	AnswerText  string           `json:"answer_text,omitempty"`
	AnswerJSON  map[string]any   `json:"answer_json,omitempty"`
	FilePath    string           `json:"file_path,omitempty"`
	Status      SubmissionStatus `json:"status"`
	Grade       *float64         `json:"grade,omitempty"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
	GradedAt    *time.Time       `json:"graded_at,omitempty"`
}

// Advance moves the submission to the next status.
func (s *Submission) Advance(to SubmissionStatus, at time.Time) error {
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("invalid submission transition %s -> %s", s.Status, to)
	}
	s.Status = to
	switch to {
	case StatusSubmitted:
		s.SubmittedAt = &at
	case StatusGraded:
		s.GradedAt = &at
	}
	return nil
}

// ScoreRecord is one play-through result of a game item. Records are never
// rewritten; best and last scores are derived.
type ScoreRecord struct {
	UserID    string    `json:"user_id"`
	ItemID    string    `json:"item_id"`
	CourseID  string    `json:"course_id"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}
