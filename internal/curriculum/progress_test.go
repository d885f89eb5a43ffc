package curriculum_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-formations/internal/curriculum"
)

func testCourse() curriculum.Course {
	return curriculum.Course{
		ID:    "c1",
		Title: "Big Data",
		Modules: []curriculum.Module{
			{
				ID: "m1",
				Items: []curriculum.Item{
					{ID: "doc", Kind: curriculum.KindDocument, Published: true},
					{ID: "ex1", Kind: curriculum.KindExercise, Published: true},
					{ID: "game1", Kind: curriculum.KindGame, Published: true},
					{ID: "hidden", Kind: curriculum.KindExercise, Published: false},
				},
			},
			{
				ID: "m2",
				Items: []curriculum.Item{
					{ID: "tp1", Kind: curriculum.KindPracticalWork, Published: true},
				},
			},
			{ID: "empty"},
		},
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{3, 3, 100},
	}
	for _, tt := range tests {
		if got := curriculum.Percent(tt.completed, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
		}
	}
}

func TestPercent_Monotonic(t *testing.T) {
	const total = 7
	prev := -1
	for c := 0; c <= total; c++ {
		p := curriculum.Percent(c, total)
		if p < prev {
			t.Fatalf("Percent(%d, %d) = %d decreased from %d", c, total, p, prev)
		}
		prev = p
	}
	if prev != 100 {
		t.Errorf("Percent(all) = %d, want 100", prev)
	}
}

func TestCourseProgressFor(t *testing.T) {
	snap := curriculum.NewSnapshot("u1",
		[]curriculum.Submission{
			{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusSubmitted},
			{UserID: "u1", ItemID: "hidden", Status: curriculum.StatusGraded},
			{UserID: "u2", ItemID: "tp1", Status: curriculum.StatusGraded},
		},
		[]curriculum.ScoreRecord{
			{UserID: "u1", ItemID: "game1", Score: 40},
			{UserID: "u1", ItemID: "game1", Score: 80},
		},
	)

	cp := curriculum.CourseProgressFor(testCourse(), snap)

	if cp.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4", cp.TotalCount)
	}
	if cp.CompletedCount != 2 {
		t.Errorf("CompletedCount = %d, want 2", cp.CompletedCount)
	}
	if cp.Percent != 50 {
		t.Errorf("Percent = %d, want 50", cp.Percent)
	}
	if len(cp.Modules) != 3 {
		t.Fatalf("len(Modules) = %d, want 3", len(cp.Modules))
	}

	m1 := cp.Modules[0]
	if m1.TotalCount != 3 || m1.CompletedCount != 2 || m1.Percent != 67 {
		t.Errorf("m1 = %+v, want 2/3 67%%", m1.Progress)
	}
	for _, ip := range m1.Items {
		if ip.ItemID == "hidden" {
			t.Error("unpublished item should be excluded")
		}
		if ip.ItemID == "game1" {
			if ip.Scores == nil || ip.Scores.Best != 80 {
				t.Errorf("game1 best = %+v, want 80", ip.Scores)
			}
		}
	}

	if m2 := cp.Modules[1]; m2.Percent != 0 {
		t.Errorf("m2 percent = %d, want 0 (another learner's submission)", m2.Percent)
	}
	if empty := cp.Modules[2]; empty.TotalCount != 0 || empty.Percent != 0 {
		t.Errorf("empty module = %+v, want 0/0 0%%", empty.Progress)
	}
}

func TestCourseProgressFor_OrderIndependent(t *testing.T) {
	subs := []curriculum.Submission{
		{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusGraded},
		{UserID: "u1", ItemID: "tp1", Status: curriculum.StatusSubmitted},
	}
	reversed := []curriculum.Submission{subs[1], subs[0]}

	a := curriculum.CourseProgressFor(testCourse(), curriculum.NewSnapshot("u1", subs, nil))
	b := curriculum.CourseProgressFor(testCourse(), curriculum.NewSnapshot("u1", reversed, nil))
	if a.Progress != b.Progress {
		t.Errorf("progress depends on record order: %+v vs %+v", a.Progress, b.Progress)
	}
}

func TestNewSnapshot_MostAdvancedSubmissionWins(t *testing.T) {
	snap := curriculum.NewSnapshot("u1", []curriculum.Submission{
		{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusSubmitted},
		{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusDraft},
	}, nil)
	sub, ok := snap.Submission("ex1")
	if !ok || sub.Status != curriculum.StatusSubmitted {
		t.Errorf("Submission(ex1) = %+v, want submitted", sub)
	}
}

func TestSummarizeScores(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	_, ok := curriculum.SummarizeScores(nil)
	if ok {
		t.Error("SummarizeScores(nil) should report no summary")
	}

	got, ok := curriculum.SummarizeScores([]curriculum.ScoreRecord{
		{Score: 70, CreatedAt: t0},
		{Score: 90, CreatedAt: t0.Add(time.Minute)},
		{Score: 50, CreatedAt: t0.Add(2 * time.Minute)},
	})
	if !ok {
		t.Fatal("SummarizeScores() should report a summary")
	}
	if got.Best != 90 {
		t.Errorf("Best = %v, want 90", got.Best)
	}
	if got.Last != 50 {
		t.Errorf("Last = %v, want 50 (later lower score)", got.Last)
	}
}

func TestSnapshot_Fingerprint(t *testing.T) {
	grade := 15.0
	subs := []curriculum.Submission{
		{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusGraded, Grade: &grade},
		{UserID: "u1", ItemID: "tp1", Status: curriculum.StatusSubmitted},
	}
	scores := []curriculum.ScoreRecord{
		{UserID: "u1", ItemID: "game1", Score: 10},
		{UserID: "u1", ItemID: "game1", Score: 30},
	}

	course := testCourse()
	a := curriculum.NewSnapshot("u1", subs, scores).Fingerprint(course)
	b := curriculum.NewSnapshot("u1",
		[]curriculum.Submission{subs[1], subs[0]},
		[]curriculum.ScoreRecord{scores[1], scores[0]},
	).Fingerprint(course)
	if a != b {
		t.Error("Fingerprint should not depend on record order")
	}

	c := curriculum.NewSnapshot("u1", subs[:1], scores).Fingerprint(course)
	if a == c {
		t.Error("Fingerprint should change when a submission is added")
	}

	course.Modules[0].Items[0].Published = !course.Modules[0].Items[0].Published
	if d := curriculum.NewSnapshot("u1", subs, scores).Fingerprint(course); d == a {
		t.Error("Fingerprint should change when an item is (un)published")
	}
	if len(a) != 64 {
		t.Errorf("len(Fingerprint) = %d, want 64 hex chars", len(a))
	}
}

type failingReader struct {
	*curriculum.MemoryStore
}

func (failingReader) ListScores(context.Context, string, string) ([]curriculum.ScoreRecord, error) {
	return nil, errors.New("connection reset")
}

func TestTracker_DegradesOnMissingScores(t *testing.T) {
	store := curriculum.NewMemoryStore()
	store.PutCourse(testCourse())
	store.PutSubmission(curriculum.Submission{UserID: "u1", ItemID: "ex1", Status: curriculum.StatusSubmitted})
	store.AddScore(curriculum.ScoreRecord{UserID: "u1", ItemID: "game1", CourseID: "c1", Score: 10})

	tracker := curriculum.NewTracker(failingReader{store})
	cp, _, err := tracker.CourseProgress(context.Background(), "c1", "u1")
	if err != nil {
		t.Fatalf("CourseProgress() error = %v", err)
	}
	if cp.CompletedCount != 1 {
		t.Errorf("CompletedCount = %d, want 1 (game treated as unplayed)", cp.CompletedCount)
	}
}

func TestTracker_CourseNotFound(t *testing.T) {
	tracker := curriculum.NewTracker(curriculum.NewMemoryStore())
	_, _, err := tracker.CourseProgress(context.Background(), "missing", "u1")
	if !errors.Is(err, curriculum.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCompletion(t *testing.T) {
	snap := curriculum.NewSnapshot("u1", []curriculum.Submission{
		{UserID: "u1", ItemID: "tp1", Status: curriculum.StatusSubmitted},
	}, nil)
	got := curriculum.Completion(testCourse(), snap)
	if !got["tp1"] {
		t.Error("tp1 should be complete")
	}
	if got["ex1"] {
		t.Error("ex1 should not be complete")
	}
}
