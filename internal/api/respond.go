package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/ai-literacy/internal/assessment"
	"github.com/p-n-ai/ai-literacy/internal/learning"
	"github.com/p-n-ai/ai-literacy/internal/progress"
)

const maxBodyBytes = 1 << 20

var errBadJSON = errors.New("malformed JSON body")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// writeError maps domain errors to status codes: not found is 404,
// validation is 400, a failed precondition is 409, anything else is 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrUnknownTopic),
		errors.Is(err, assessment.ErrUnknownTopic),
		errors.Is(err, assessment.ErrTestNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadJSON),
		errors.Is(err, progress.ErrMissingID),
		errors.Is(err, progress.ErrInvalidLesson),
		errors.Is(err, progress.ErrInvalidScore),
		errors.Is(err, assessment.ErrInvalidAnswers),
		errors.Is(err, learning.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrLessonsIncomplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}
