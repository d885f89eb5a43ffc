package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/platform/metrics"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

// progressRequest carries a course and one learner's records.
type progressRequest struct {
	UserID      string                   `json:"user_id" validate:"required"`
	Course      curriculum.Course        `json:"course"`
	Submissions []curriculum.Submission  `json:"submissions"`
	Scores      []curriculum.ScoreRecord `json:"scores"`
}

type verdictRequest struct {
	Config   json.RawMessage    `json:"config" validate:"required"`
	Outcomes map[string]float64 `json:"outcomes"`
}

type unlockRequest struct {
	Batch     json.RawMessage `json:"batch" validate:"required"`
	Completed map[string]bool `json:"completed"`
}

// unlockResponse is the unlock state of a batch for one learner.
type unlockResponse struct {
	BatchID       string                `json:"batch_id,omitempty"`
	RequiredDone  int                   `json:"required_done"`
	RequiredTotal int                   `json:"required_total"`
	Items         []tpbatch.UnlockState `json:"items"`
}

func (s *Server) handleComputeProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap := curriculum.NewSnapshot(req.UserID, req.Submissions, req.Scores)
	writeJSON(w, http.StatusOK, curriculum.CourseProgressFor(req.Course, snap))
}

func (s *Server) handleComputeVerdict(w http.ResponseWriter, r *http.Request) {
	var req verdictRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := evaluation.ParseDocument(req.Config)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := evaluation.Score(cfg, req.Outcomes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleComputeUnlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := tpbatch.ParseDocument(req.Batch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := unlock(b, req.Completed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCourseProgress serves a learner's progress with an ETag derived from
// the course layout and the learner's records.
func (s *Server) handleCourseProgress(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start := time.Now()
	course, err := s.tracker.Course(r.Context(), r.PathValue("courseID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap := s.tracker.Snapshot(r.Context(), course, user)

	etag := `"` + snap.Fingerprint(course) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	cp := curriculum.CourseProgressFor(course, snap)
	metrics.ObserveProgress(time.Since(start))
	writeJSON(w, http.StatusOK, cp)
}

// handleCourseVerdict scores the learner against the course's evaluation
// configuration using graded submissions, game scores and quiz attempts.
func (s *Server) handleCourseVerdict(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	courseID := r.PathValue("courseID")

	course, err := s.tracker.Course(ctx, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := s.evaluations.Config(ctx, courseID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap := s.tracker.Snapshot(ctx, course, user)

	refs := make([]string, 0, len(cfg.Entries()))
	for _, e := range cfg.Entries() {
		refs = append(refs, e.RefID)
	}
	quizBest, err := s.quiz.BestPercentages(ctx, user, refs)
	if err != nil {
		slog.Warn("quiz results unavailable, treating as none",
			"course_id", courseID,
			"user_id", user,
			"error", err,
		)
		quizBest = nil
	}

	v, err := evaluation.Score(cfg, evaluation.OutcomesFromRecords(cfg, snap, quizBest))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleBatchUnlock resolves a stored batch against the learner's completion
// of the batch's course.
func (s *Server) handleBatchUnlock(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()

	b, err := s.batches.Batch(ctx, r.PathValue("batchID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	course, err := s.tracker.Course(ctx, b.CourseID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	completed := curriculum.Completion(course, s.tracker.Snapshot(ctx, course, user))

	resp, err := unlock(b, completed)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func unlock(b tpbatch.Batch, completed map[string]bool) (unlockResponse, error) {
	states, err := tpbatch.Resolve(b, completed)
	if err != nil {
		return unlockResponse{}, err
	}
	done, total := tpbatch.RequiredProgress(b, completed)
	return unlockResponse{
		BatchID:       b.ID(),
		RequiredDone:  done,
		RequiredTotal: total,
		Items:         states,
	}, nil
}
