// Package api exposes the learning engine over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/ai-literacy/internal/learning"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// Config holds dependencies for the HTTP surface.
type Config struct {
	Engine *learning.Engine
	// AdminTokenHash is the bcrypt hash of the admin bearer token. Admin
	// routes are not served when it is empty.
	AdminTokenHash string
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]Checker
	// OriginPatterns lists extra hosts allowed to open the chat socket.
	OriginPatterns []string
}

// Server serves the learning API.
type Server struct {
	engine         *learning.Engine
	adminHash      []byte
	checks         map[string]Checker
	originPatterns []string
}

// New creates an API server.
func New(cfg Config) *Server {
	return &Server{
		engine:         cfg.Engine,
		adminHash:      []byte(cfg.AdminTokenHash),
		checks:         cfg.Checks,
		originPatterns: cfg.OriginPatterns,
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /lesson/start", s.handleLessonStart)
	mux.HandleFunc("POST /lesson/complete", s.handleLessonComplete)
	mux.HandleFunc("POST /test/generate", s.handleTestGenerate)
	mux.HandleFunc("POST /test/submit", s.handleTestSubmit)

	mux.HandleFunc("GET /topics", s.handleTopics)
	mux.HandleFunc("GET /topics/{id}", s.handleTopic)
	mux.HandleFunc("GET /students/{id}/progress", s.handleStudentProgress)
	mux.HandleFunc("GET /students/{id}/next", s.handleStudentNext)
	mux.HandleFunc("GET /students/{id}/profile", s.handleStudentProfile)

	mux.HandleFunc("GET /chat", s.handleChat)

	if len(s.adminHash) > 0 {
		mux.Handle("GET /admin/results", s.requireAdmin(http.HandlerFunc(s.handleAdminResults)))
		mux.Handle("GET /admin/students/{id}", s.requireAdmin(http.HandlerFunc(s.handleAdminStudent)))
	} else {
		slog.Info("admin console disabled, no token hash configured")
	}

	return recoverPanics(logRequests(mux))
}
