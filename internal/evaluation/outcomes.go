package evaluation

import "github.com/p-n-ai/pai-formations/internal/curriculum"

// OutcomesFromRecords assembles scorer inputs for each configured entry.
// The first available source wins: a graded submission's grade, then the
// best game score, then the best quiz percentage keyed by evaluation ID.
// Entries with no source are left out and score as 0.
func OutcomesFromRecords(cfg Config, snap curriculum.Snapshot, quizBest map[string]float64) map[string]float64 {
	out := make(map[string]float64)
	for _, e := range cfg.entries {
		if sub, ok := snap.Submission(e.RefID); ok && sub.Grade != nil {
			out[e.RefID] = *sub.Grade
			continue
		}
		if summary, ok := curriculum.SummarizeScores(snap.Scores(e.RefID)); ok {
			out[e.RefID] = summary.Best
			continue
		}
		if pct, ok := quizBest[e.RefID]; ok {
			out[e.RefID] = pct
		}
	}
	return out
}
