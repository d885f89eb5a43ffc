// Package tpbatch resolves which practical-work (TP) items of a batch a
// learner may open, given completion state and each item's single
// prerequisite.
package tpbatch

import (
	"errors"
	"fmt"
	"sort"
)

// ErrConfiguration marks a malformed batch.
var ErrConfiguration = errors.New("invalid tp batch configuration")

// ConfigError describes a malformed batch entry.
type ConfigError struct {
	ItemID string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.ItemID == "" {
		return fmt.Sprintf("tp batch: %s", e.Reason)
	}
	return fmt.Sprintf("tp batch item %s: %s", e.ItemID, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// EntryInput is an authored batch entry.
type EntryInput struct {
	ItemID             string `json:"item_id" yaml:"item_id"`
	Position           int    `json:"position" yaml:"position"`
	Required           bool   `json:"is_required" yaml:"required"`
	PrerequisiteItemID string `json:"prerequisite_item_id,omitempty" yaml:"prerequisite"`
}

// BatchInput is an authored batch before validation.
type BatchInput struct {
	ID         string       `json:"id" yaml:"id"`
	CourseID   string       `json:"course_id" yaml:"course_id"`
	Title      string       `json:"title" yaml:"title"`
	Sequential bool         `json:"sequential_order" yaml:"sequential"`
	Items      []EntryInput `json:"items" yaml:"items"`
}

// Entry is one validated batch entry. Prerequisite is empty when the entry
// has none; an entry never has more than one.
type Entry struct {
	ItemID       string
	Position     int
	Required     bool
	Prerequisite string
}

// HasPrerequisite reports whether the entry depends on another one.
func (e Entry) HasPrerequisite() bool { return e.Prerequisite != "" }

// Batch is a validated, position-ordered TP batch. Build one with NewBatch.
type Batch struct {
	id         string
	courseID   string
	title      string
	sequential bool
	entries    []Entry
	valid      bool
}

// NewBatch validates an authored batch. Item IDs and positions must be
// unique, and a prerequisite must name another entry of the same batch with
// a strictly smaller position.
func NewBatch(in BatchInput) (Batch, error) {
	entries := make([]Entry, 0, len(in.Items))
	byItem := make(map[string]int, len(in.Items))
	positions := make(map[int]string, len(in.Items))

	for _, it := range in.Items {
		if it.ItemID == "" {
			return Batch{}, &ConfigError{Reason: fmt.Sprintf("entry at position %d has no item", it.Position)}
		}
		if _, dup := byItem[it.ItemID]; dup {
			return Batch{}, &ConfigError{ItemID: it.ItemID, Reason: "listed twice"}
		}
		if other, dup := positions[it.Position]; dup {
			return Batch{}, &ConfigError{ItemID: it.ItemID, Reason: fmt.Sprintf("shares position %d with %s", it.Position, other)}
		}
		byItem[it.ItemID] = it.Position
		positions[it.Position] = it.ItemID
		entries = append(entries, Entry{
			ItemID:       it.ItemID,
			Position:     it.Position,
			Required:     it.Required,
			Prerequisite: it.PrerequisiteItemID,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })

	for _, e := range entries {
		if err := checkPrerequisite(e, byItem); err != nil {
			return Batch{}, err
		}
	}

	return Batch{
		id:         in.ID,
		courseID:   in.CourseID,
		title:      in.Title,
		sequential: in.Sequential,
		entries:    entries,
		valid:      true,
	}, nil
}

func checkPrerequisite(e Entry, positions map[string]int) error {
	if !e.HasPrerequisite() {
		return nil
	}
	if e.Prerequisite == e.ItemID {
		return &ConfigError{ItemID: e.ItemID, Reason: "is its own prerequisite"}
	}
	pos, ok := positions[e.Prerequisite]
	if !ok {
		return &ConfigError{ItemID: e.ItemID, Reason: fmt.Sprintf("prerequisite %s is not in the batch", e.Prerequisite)}
	}
	if pos >= e.Position {
		return &ConfigError{ItemID: e.ItemID, Reason: fmt.Sprintf("prerequisite %s is not positioned before it", e.Prerequisite)}
	}
	return nil
}

func (b Batch) ID() string       { return b.id }
func (b Batch) CourseID() string { return b.courseID }
func (b Batch) Title() string    { return b.title }
func (b Batch) Sequential() bool { return b.sequential }
func (b Batch) Entries() []Entry { return append([]Entry(nil), b.entries...) }
