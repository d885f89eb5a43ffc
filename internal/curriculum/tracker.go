package curriculum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-formations/internal/platform/metrics"
)

// Tracker reads learner records and computes progress from them.
type Tracker struct {
	reader Reader
}

// NewTracker creates a progress tracker over the given reader.
func NewTracker(reader Reader) *Tracker {
	return &Tracker{reader: reader}
}

// Course fetches a course. It is the primary subject of progress calls, so
// failures are surfaced rather than degraded.
func (t *Tracker) Course(ctx context.Context, courseID string) (Course, error) {
	c, err := t.reader.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Course{}, err
		}
		return Course{}, fmt.Errorf("get course %s: %w: %v", courseID, ErrDataUnavailable, err)
	}
	return c, nil
}

// Snapshot reads the learner's submissions and scores for a course. A failed
// read of either collection is logged and treated as an absence, which makes
// affected items incomplete instead of failing the whole computation.
func (t *Tracker) Snapshot(ctx context.Context, c Course, userID string) Snapshot {
	subs, err := t.reader.ListSubmissions(ctx, userID, c.ItemIDs())
	if err != nil {
		slog.Warn("submissions unavailable, treating as none",
			"course_id", c.ID,
			"user_id", userID,
			"error", err,
		)
		subs = nil
	}
	scores, err := t.reader.ListScores(ctx, userID, c.ID)
	if err != nil {
		slog.Warn("scores unavailable, treating as none",
			"course_id", c.ID,
			"user_id", userID,
			"error", err,
		)
		scores = nil
	}
	return NewSnapshot(userID, subs, scores)
}

// CourseProgress computes the learner's progress through a course.
func (t *Tracker) CourseProgress(ctx context.Context, courseID, userID string) (CourseProgress, Snapshot, error) {
	start := time.Now()
	c, err := t.Course(ctx, courseID)
	if err != nil {
		return CourseProgress{}, Snapshot{}, err
	}
	snap := t.Snapshot(ctx, c, userID)
	cp := CourseProgressFor(c, snap)
	metrics.ObserveProgress(time.Since(start))
	return cp, snap, nil
}
