package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/ai-literacy/internal/assessment"
	"github.com/p-n-ai/ai-literacy/internal/learning"
)

const maxResultLimit = 1000

// requireAdmin checks the bearer token against the configured bcrypt hash.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.adminHash, []byte(token)); err != nil {
			slog.Warn("admin token rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAdminResults(w http.ResponseWriter, r *http.Request) {
	q := assessment.ResultQuery{
		StudentID: r.URL.Query().Get("student_id"),
		TopicID:   r.URL.Query().Get("topic_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxResultLimit {
			writeError(w, r, fmt.Errorf("%w: limit must be 1..%d", learning.ErrInvalidRequest, maxResultLimit))
			return
		}
		q.Limit = n
	}

	results, err := s.engine.Results(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []assessment.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleAdminStudent(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Student(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
