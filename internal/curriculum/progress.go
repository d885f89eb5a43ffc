package curriculum

import "math"

// Progress is a completion count over published items.
type Progress struct {
	CompletedCount int `json:"completed_count"`
	TotalCount     int `json:"total_count"`
	Percent        int `json:"percent"`
}

// ScoreSummary is derived from a learner's score records for one item.
// Best is the highest score; Last is the most recent one.
type ScoreSummary struct {
	Best float64 `json:"best"`
	Last float64 `json:"last"`
}

// ItemProgress is the classification of one published item.
type ItemProgress struct {
	ItemID   string        `json:"item_id"`
	Kind     ItemKind      `json:"type"`
	Complete bool          `json:"complete"`
	Scores   *ScoreSummary `json:"scores,omitempty"`
}

// ModuleProgress is the roll-up of one module.
type ModuleProgress struct {
	ModuleID string `json:"module_id"`
	Progress
	Items []ItemProgress `json:"items"`
}

// CourseProgress is the roll-up of a whole course.
type CourseProgress struct {
	CourseID string `json:"course_id"`
	UserID   string `json:"user_id"`
	Progress
	Modules []ModuleProgress `json:"modules"`
}

// Percent returns round(100 * completed / total), or 0 for an empty total.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}

func newProgress(completed, total int) Progress {
	return Progress{
		CompletedCount: completed,
		TotalCount:     total,
		Percent:        Percent(completed, total),
	}
}

// SummarizeScores derives best and last scores. A later record with an equal
// or lower value never replaces Best; ties on CreatedAt resolve to the record
// appearing last.
func SummarizeScores(records []ScoreRecord) (ScoreSummary, bool) {
	if len(records) == 0 {
		return ScoreSummary{}, false
	}
	best := records[0].Score
	last := records[0]
	for _, r := range records[1:] {
		if r.Score > best {
			best = r.Score
		}
		if !r.CreatedAt.Before(last.CreatedAt) {
			last = r
		}
	}
	return ScoreSummary{Best: best, Last: last.Score}, true
}

// ModuleProgressFor classifies each published item of the module.
func ModuleProgressFor(m Module, snap Snapshot) ModuleProgress {
	mp := ModuleProgress{ModuleID: m.ID, Items: []ItemProgress{}}
	completed, total := 0, 0
	for _, it := range m.Items {
		if !it.Published {
			continue
		}
		ev := snap.Evidence(it.ID)
		ip := ItemProgress{
			ItemID:   it.ID,
			Kind:     it.Kind,
			Complete: IsComplete(it, ev),
		}
		if summary, ok := SummarizeScores(ev.Scores); ok {
			ip.Scores = &summary
		}
		total++
		if ip.Complete {
			completed++
		}
		mp.Items = append(mp.Items, ip)
	}
	mp.Progress = newProgress(completed, total)
	return mp
}

// CourseProgressFor rolls every module up and computes the course
// percentage over the flattened item list, not as an average of modules.
func CourseProgressFor(c Course, snap Snapshot) CourseProgress {
	cp := CourseProgress{CourseID: c.ID, UserID: snap.UserID, Modules: []ModuleProgress{}}
	completed, total := 0, 0
	for _, m := range c.Modules {
		mp := ModuleProgressFor(m, snap)
		completed += mp.CompletedCount
		total += mp.TotalCount
		cp.Modules = append(cp.Modules, mp)
	}
	cp.Progress = newProgress(completed, total)
	return cp
}

// Completion returns the completion state of every item in the course,
// keyed by item ID. Unpublished items map to false.
func Completion(c Course, snap Snapshot) map[string]bool {
	out := make(map[string]bool)
	for _, m := range c.Modules {
		for _, it := range m.Items {
			out[it.ID] = IsComplete(it, snap.Evidence(it.ID))
		}
	}
	return out
}
