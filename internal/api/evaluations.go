package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-formations/internal/quiz"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reorderRequest struct {
	Order []string `json:"order" validate:"required,min=1,dive,required"`
}

type answersRequest struct {
	Answers map[string]string `json:"answers" validate:"required"`
}

type reviewRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	Points     *int   `json:"points" validate:"required,min=0"`
}

func (s *Server) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var in quiz.EvaluationInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := s.quiz.CreateEvaluation(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := s.quiz.GetEvaluation(r.Context(), r.PathValue("evaluationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvaluation(w http.ResponseWriter, r *http.Request) {
	var in quiz.EvaluationInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := s.quiz.UpdateEvaluation(r.Context(), r.PathValue("evaluationID"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var q quiz.Question
	if err := s.decode(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := s.quiz.AddQuestion(r.Context(), r.PathValue("evaluationID"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q quiz.Question
	if err := s.decode(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q.ID = r.PathValue("questionID")
	if err := s.quiz.UpdateQuestion(r.Context(), r.PathValue("evaluationID"), q); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	err := s.quiz.DeleteQuestion(r.Context(), r.PathValue("evaluationID"), r.PathValue("questionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderQuestions(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("evaluationID")
	if err := s.quiz.ReorderQuestions(r.Context(), id, req.Order); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := s.quiz.GetEvaluation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ev, err := s.quiz.Publish(r.Context(), r.PathValue("evaluationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	ev, err := s.quiz.Unpublish(r.Context(), r.PathValue("evaluationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.quiz.StartAttempt(r.Context(), r.PathValue("evaluationID"), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// handleListAttempts returns the caller's history when a user is given and
// every attempt of the evaluation otherwise.
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("evaluationID")
	if user, err := userID(r); err == nil {
		h, err := s.quiz.UserAttempts(r.Context(), id, user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
		return
	}

	attempts, err := s.quiz.Attempts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluation_id": id, "attempts": attempts})
}

func (s *Server) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req answersRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.quiz.SaveAnswers(r.Context(), r.PathValue("attemptID"), user, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.quiz.SubmitAttempt(r.Context(), r.PathValue("attemptID"), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleReviewAnswer(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.quiz.ReviewAnswer(r.Context(), r.PathValue("attemptID"), req.QuestionID, *req.Points)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempt":              a,
		"effective_percentage": a.EffectivePercentage(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.quiz.Summary(r.Context(), r.PathValue("evaluationID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleExportResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("evaluationID")

	ev, err := s.quiz.GetEvaluation(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attempts, err := s.quiz.Attempts(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum := quiz.Summarize(id, attempts)

	// Buffer so a failed export can still be reported as an error.
	var buf bytes.Buffer
	if err := quiz.ExportResults(&buf, ev, attempts, sum); err != nil {
		writeError(w, r, fmt.Errorf("export results: %w", err))
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="evaluation-%s-results.xlsx"`, id))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("write export failed", "evaluation_id", id, "error", err)
	}
}
