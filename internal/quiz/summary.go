package quiz

import (
	"math"
	"sort"
)

// ResultsSummary aggregates submitted attempts of one evaluation. Each
// participant contributes a single attempt, their best one.
type ResultsSummary struct {
	EvaluationID      string  `json:"evaluation_id"`
	Participants      int     `json:"participants"`
	SubmittedAttempts int     `json:"submitted_attempts"`
	Passed            int     `json:"passed"`
	Failed            int     `json:"failed"`
	MinPercentage     int     `json:"min_percentage"`
	MaxPercentage     int     `json:"max_percentage"`
	AvgPercentage     float64 `json:"avg_percentage"`
}

// Summarize builds the results summary. In-progress attempts are ignored.
func Summarize(evaluationID string, attempts []Attempt) ResultsSummary {
	s := ResultsSummary{EvaluationID: evaluationID}
	best := BestPerLearner(attempts)
	for _, a := range attempts {
		if a.Submitted() {
			s.SubmittedAttempts++
		}
	}
	if len(best) == 0 {
		return s
	}

	s.Participants = len(best)
	s.MinPercentage = math.MaxInt
	sum := 0
	for _, a := range best {
		if a.IsPassed {
			s.Passed++
		} else {
			s.Failed++
		}
		s.MinPercentage = min(s.MinPercentage, a.Percentage)
		s.MaxPercentage = max(s.MaxPercentage, a.Percentage)
		sum += a.Percentage
	}
	s.AvgPercentage = math.Round(100*float64(sum)/float64(len(best))) / 100
	return s
}

// BestPerLearner returns each learner's best submitted attempt, ordered by
// user ID. Ties on percentage go to the earliest submission.
func BestPerLearner(attempts []Attempt) []Attempt {
	byUser := make(map[string]Attempt)
	for _, a := range attempts {
		if !a.Submitted() {
			continue
		}
		cur, ok := byUser[a.UserID]
		if !ok || better(a, cur) {
			byUser[a.UserID] = a
		}
	}

	out := make([]Attempt, 0, len(byUser))
	for _, a := range byUser {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func better(a, b Attempt) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	if !a.SubmittedAt.Equal(*b.SubmittedAt) {
		return a.SubmittedAt.Before(*b.SubmittedAt)
	}
	return a.AttemptNumber < b.AttemptNumber
}
