// Package api exposes progress, verdicts, TP unlocking and the evaluation
// attempt engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/live"
	"github.com/p-n-ai/pai-formations/internal/platform/metrics"
	"github.com/p-n-ai/pai-formations/internal/quiz"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

const readyTimeout = 2 * time.Second

// Deps holds the services behind the HTTP handlers.
type Deps struct {
	Tracker     *curriculum.Tracker
	Evaluations evaluation.Source
	Batches     tpbatch.Source
	Quiz        *quiz.Engine
	Hub         *live.Hub // optional; without it /live is not routed
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Server routes HTTP requests to the domain services.
type Server struct {
	tracker     *curriculum.Tracker
	evaluations evaluation.Source
	batches     tpbatch.Source
	quiz        *quiz.Engine
	hub         *live.Hub
	ready       func(ctx context.Context) error
	validate    *validator.Validate
}

// New creates a server over the given dependencies.
func New(d Deps) *Server {
	return &Server{
		tracker:     d.Tracker,
		evaluations: d.Evaluations,
		batches:     d.Batches,
		quiz:        d.Quiz,
		hub:         d.Hub,
		ready:       d.Ready,
		validate:    newValidator(),
	}
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", metrics.Handler())

	// Stateless computations over caller-supplied records.
	mux.HandleFunc("POST /progress/course", s.handleComputeProgress)
	mux.HandleFunc("POST /evaluation/verdict", s.handleComputeVerdict)
	mux.HandleFunc("POST /tp-batches/unlock", s.handleComputeUnlock)

	// Computations over stored records.
	mux.HandleFunc("GET /courses/{courseID}/progress", s.handleCourseProgress)
	mux.HandleFunc("GET /courses/{courseID}/verdict", s.handleCourseVerdict)
	mux.HandleFunc("GET /tp-batches/{batchID}/unlock", s.handleBatchUnlock)

	// Evaluation authoring.
	mux.HandleFunc("POST /evaluations", s.handleCreateEvaluation)
	mux.HandleFunc("GET /evaluations/{evaluationID}", s.handleGetEvaluation)
	mux.HandleFunc("PUT /evaluations/{evaluationID}", s.handleUpdateEvaluation)
	mux.HandleFunc("POST /evaluations/{evaluationID}/questions", s.handleAddQuestion)
	mux.HandleFunc("PUT /evaluations/{evaluationID}/questions/order", s.handleReorderQuestions)
	mux.HandleFunc("PUT /evaluations/{evaluationID}/questions/{questionID}", s.handleUpdateQuestion)
	mux.HandleFunc("DELETE /evaluations/{evaluationID}/questions/{questionID}", s.handleDeleteQuestion)
	mux.HandleFunc("POST /evaluations/{evaluationID}/publish", s.handlePublish)
	mux.HandleFunc("POST /evaluations/{evaluationID}/unpublish", s.handleUnpublish)

	// Attempts and results.
	mux.HandleFunc("POST /evaluations/{evaluationID}/attempts", s.handleStartAttempt)
	mux.HandleFunc("GET /evaluations/{evaluationID}/attempts", s.handleListAttempts)
	mux.HandleFunc("PUT /attempts/{attemptID}/answers", s.handleSaveAnswers)
	mux.HandleFunc("POST /attempts/{attemptID}/submit", s.handleSubmitAttempt)
	mux.HandleFunc("POST /attempts/{attemptID}/review", s.handleReviewAnswer)
	mux.HandleFunc("GET /evaluations/{evaluationID}/summary", s.handleSummary)
	mux.HandleFunc("GET /evaluations/{evaluationID}/results.xlsx", s.handleExportResults)
	if s.hub != nil {
		mux.Handle("GET /evaluations/{evaluationID}/live", s.hub.Handler(s.quiz.Summary))
	}

	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
