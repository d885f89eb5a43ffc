package quiz

import (
	"math"

	"golang.org/x/text/unicode/norm"
)

// Grade scores staged answers against the evaluation. Choice questions match
// exactly after NFC normalisation, so case and surrounding whitespace count.
// Free-text and code questions earn 0 and wait for a reviewer.
func Grade(ev Evaluation, answers map[string]string) (results []QuestionResult, earned, total int) {
	results = make([]QuestionResult, 0, len(ev.Questions))
	for _, q := range ev.Questions {
		answer := answers[q.ID]
		r := QuestionResult{
			QuestionID: q.ID,
			Answer:     answer,
			PointsMax:  q.Points,
		}
		if q.Type.AutoGraded() {
			r.Correct = matches(answer, q.CorrectAnswer)
			if r.Correct {
				r.PointsEarned = q.Points
			}
		} else {
			r.NeedsReview = answer != ""
		}
		earned += r.PointsEarned
		total += q.Points
		results = append(results, r)
	}
	return results, earned, total
}

func matches(answer, correct string) bool {
	if answer == "" {
		return false
	}
	return norm.NFC.String(answer) == norm.NFC.String(correct)
}

func percentage(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(earned) / float64(total)))
}
