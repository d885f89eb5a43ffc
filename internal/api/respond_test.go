package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/quiz"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad request", fmt.Errorf("%w: nope", errBadRequest), http.StatusBadRequest},
		{"validation", &validationError{fields: map[string]string{"title": "required"}}, http.StatusBadRequest},
		{"evaluation config", &evaluation.ConfigError{Index: 0, Reason: "weight"}, http.StatusUnprocessableEntity},
		{"batch config", &tpbatch.ConfigError{ItemID: "A", Reason: "cycle"}, http.StatusUnprocessableEntity},
		{"quiz input", fmt.Errorf("%w: points", quiz.ErrInvalidInput), http.StatusUnprocessableEntity},
		{"quota", quiz.ErrAttemptQuotaExceeded, http.StatusConflict},
		{"attempt state", fmt.Errorf("attempt a1: %w", quiz.ErrInvalidAttemptState), http.StatusConflict},
		{"not publishable", quiz.ErrNotPublishable, http.StatusConflict},
		{"course not found", fmt.Errorf("course c1: %w", curriculum.ErrNotFound), http.StatusNotFound},
		{"config not found", evaluation.ErrNotFound, http.StatusNotFound},
		{"batch not found", tpbatch.ErrNotFound, http.StatusNotFound},
		{"evaluation not found", quiz.ErrNotFound, http.StatusNotFound},
		{"data unavailable", fmt.Errorf("get course: %w", curriculum.ErrDataUnavailable), http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUserID(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		target  string
		want    string
		wantErr bool
	}{
		{"header", "u1", "/x", "u1", false},
		{"query", "", "/x?user_id=u2", "u2", false},
		{"header wins", "u1", "/x?user_id=u2", "u1", false},
		{"missing", "", "/x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("X-User-ID", tt.header)
			}
			got, err := userID(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("userID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("userID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: password leaked"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"error\":\"internal error\"}\n" {
		t.Errorf("body = %q, want generic message", got)
	}
}
