// Package evaluation computes weighted pass/fail verdicts for a course or
// program from a validated evaluation configuration.
package evaluation

import (
	"errors"
	"fmt"
)

// DefaultPassingScore applies when a configuration does not set one.
const DefaultPassingScore = 60

// ErrConfiguration marks a malformed evaluation configuration.
var ErrConfiguration = errors.New("invalid evaluation configuration")

// ConfigError describes what is wrong with a configuration.
type ConfigError struct {
	Index  int // entry index, -1 for config-level problems
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("evaluation config: %s", e.Reason)
	}
	return fmt.Sprintf("evaluation config entry %d: %s", e.Index, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// EntryInput is an authored entry as it arrives from YAML or JSON.
type EntryInput struct {
	ItemID    string `json:"itemId" yaml:"item_id"`
	Title     string `json:"title,omitempty" yaml:"title"`
	Weight    int    `json:"weight" yaml:"weight"`
	Threshold *int   `json:"threshold,omitempty" yaml:"threshold"`
}

// ConfigInput is an authored configuration before validation.
type ConfigInput struct {
	Items        []EntryInput `json:"items" yaml:"items"`
	PassingScore *int         `json:"passingScore,omitempty" yaml:"passing_score"`
}

// Entry is one weighted component of a validated configuration.
type Entry struct {
	RefID     string
	Title     string
	Weight    int
	Threshold *int
}

// Config is a validated evaluation configuration. The zero value is not
// usable; build one with NewConfig.
type Config struct {
	entries      []Entry
	passingScore int
	valid        bool
}

// NewConfig validates an authored configuration. Weights must be positive,
// thresholds and the passing score must lie within 0..100, and an item may
// appear only once.
func NewConfig(in ConfigInput) (Config, error) {
	passing := DefaultPassingScore
	if in.PassingScore != nil {
		passing = *in.PassingScore
	}
	if passing < 0 || passing > 100 {
		return Config{}, &ConfigError{Index: -1, Reason: fmt.Sprintf("passing score %d outside 0..100", passing)}
	}

	seen := make(map[string]bool, len(in.Items))
	entries := make([]Entry, 0, len(in.Items))
	for i, it := range in.Items {
		switch {
		case it.ItemID == "":
			return Config{}, &ConfigError{Index: i, Reason: "item id is required"}
		case seen[it.ItemID]:
			return Config{}, &ConfigError{Index: i, Reason: fmt.Sprintf("item %s listed twice", it.ItemID)}
		case it.Weight <= 0:
			return Config{}, &ConfigError{Index: i, Reason: fmt.Sprintf("weight %d must be a positive integer", it.Weight)}
		case it.Threshold != nil && (*it.Threshold < 0 || *it.Threshold > 100):
			return Config{}, &ConfigError{Index: i, Reason: fmt.Sprintf("threshold %d outside 0..100", *it.Threshold)}
		}
		seen[it.ItemID] = true

		e := Entry{RefID: it.ItemID, Title: it.Title, Weight: it.Weight}
		if it.Threshold != nil {
			th := *it.Threshold
			e.Threshold = &th
		}
		entries = append(entries, e)
	}

	return Config{entries: entries, passingScore: passing, valid: true}, nil
}

// Entries returns a copy of the configured entries in authored order.
func (c Config) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// PassingScore returns the global passing score.
func (c Config) PassingScore() int { return c.passingScore }

// TotalWeight is the sum of all entry weights.
func (c Config) TotalWeight() int {
	total := 0
	for _, e := range c.entries {
		total += e.Weight
	}
	return total
}
