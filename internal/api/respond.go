package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-formations/internal/curriculum"
	"github.com/p-n-ai/pai-formations/internal/evaluation"
	"github.com/p-n-ai/pai-formations/internal/platform/observability"
	"github.com/p-n-ai/pai-formations/internal/quiz"
	"github.com/p-n-ai/pai-formations/internal/tpbatch"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed requests: bad JSON, missing user, failed
// field validation.
var errBadRequest = errors.New("bad request")

// validationError carries per-field validation failures.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.fields))
}

func (e *validationError) Unwrap() error { return errBadRequest }

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates struct tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		return &validationError{fields: fields}
	}
	return nil
}

// userID identifies the caller from the X-User-ID header or the user_id
// query parameter.
func userID(r *http.Request) (string, error) {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: user id is required (X-User-ID header or user_id query)", errBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, evaluation.ErrConfiguration),
		errors.Is(err, tpbatch.ErrConfiguration),
		errors.Is(err, quiz.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, quiz.ErrAttemptQuotaExceeded),
		errors.Is(err, quiz.ErrInvalidAttemptState),
		errors.Is(err, quiz.ErrNotPublishable):
		return http.StatusConflict
	case errors.Is(err, curriculum.ErrNotFound),
		errors.Is(err, evaluation.ErrNotFound),
		errors.Is(err, tpbatch.ErrNotFound),
		errors.Is(err, quiz.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, curriculum.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var ve *validationError
	if errors.As(err, &ve) {
		resp.Fields = ve.fields
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			observability.CaptureError(err, map[string]string{"route": r.Pattern})
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}
