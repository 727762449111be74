package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/p-n-ai/ai-literacy/internal/ai"
	"github.com/p-n-ai/ai-literacy/internal/assessment"
	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/learning"
)

const adminToken = "let-me-in"

type testAPI struct {
	handler  http.Handler
	sessions *assessment.MemorySessionStore
}

func newTestAPI(t *testing.T, completer ai.Completer, checks map[string]Checker) testAPI {
	t.Helper()
	catalog, err := curriculum.Default()
	if err != nil {
		t.Fatal(err)
	}
	sessions := assessment.NewMemorySessionStore(time.Hour)
	engine, err := learning.NewEngine(learning.Config{
		Catalog:   catalog,
		Completer: completer,
		Sessions:  sessions,
		Timeout:   time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Config{Engine: engine, AdminTokenHash: string(hash), Checks: checks})
	return testAPI{handler: srv.Handler(), sessions: sessions}
}

func (a testAPI) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Checker
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			checks:     map[string]Checker{"database": func(context.Context) error { return nil }},
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz reports failed checks",
			checks:     map[string]Checker{"cache": func(context.Context) error { return errors.New("connection refused") }},
			path:       "/readyz",
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"checks":{"cache":"connection refused"},"status":"unavailable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newTestAPI(t, nil, tt.checks).do(t, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestLessonEndpoints(t *testing.T) {
	a := newTestAPI(t, nil, nil)

	rec := a.do(t, http.MethodPost, "/lesson/start", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "lesson": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	started := decodeBody[struct {
		Lesson   curriculum.Lesson `json:"lesson"`
		Progress struct {
			CurrentLesson int    `json:"current_lesson"`
			Status        string `json:"status"`
		} `json:"progress"`
	}](t, rec)
	if started.Lesson.Title != "Spotting AI around you" || started.Lesson.Source != curriculum.SourceTemplate {
		t.Errorf("lesson = %+v", started.Lesson)
	}
	if started.Progress.CurrentLesson != 1 || started.Progress.Status != "in_progress" {
		t.Errorf("progress = %+v", started.Progress)
	}

	rec = a.do(t, http.MethodPost, "/lesson/complete", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "lesson": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", rec.Code, rec.Body)
	}
	done := decodeBody[struct {
		CompletedLessons []int `json:"completed_lessons"`
	}](t, rec)
	if len(done.CompletedLessons) != 1 {
		t.Errorf("completed = %v", done.CompletedLessons)
	}
}

func TestErrorMapping(t *testing.T) {
	a := newTestAPI(t, nil, nil)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"unknown topic", "/lesson/start", map[string]any{"student_id": "s1", "topic_id": "nope", "lesson": 1}, http.StatusNotFound},
		{"missing student", "/lesson/start", map[string]any{"topic_id": "what-is-ai", "lesson": 1}, http.StatusBadRequest},
		{"lesson out of range", "/lesson/complete", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "lesson": 9}, http.StatusBadRequest},
		{"malformed JSON", "/lesson/start", `{"student_id":`, http.StatusBadRequest},
		{"test before lessons", "/test/generate", map[string]any{"student_id": "s1", "topic_id": "what-is-ai"}, http.StatusConflict},
		{"bad grade band", "/test/generate", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "grade_band": "college"}, http.StatusBadRequest},
		{"unknown test", "/test/submit", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "test_id": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if body := decodeBody[errorResponse](t, rec); body.Error == "" {
				t.Error("error body is empty")
			}
		})
	}

	if rec := a.do(t, http.MethodGet, "/lesson/start", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /lesson/start status = %d, want 405", rec.Code)
	}
}

func TestTestEndpoints(t *testing.T) {
	a := newTestAPI(t, &ai.MockProvider{Err: errors.New("offline")}, nil)
	for step := 1; step <= 3; step++ {
		rec := a.do(t, http.MethodPost, "/lesson/complete", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "lesson": step})
		if rec.Code != http.StatusOK {
			t.Fatalf("complete %d status = %d", step, rec.Code)
		}
	}

	rec := a.do(t, http.MethodPost, "/test/generate", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "grade_band": "high"})
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "correct_index") || strings.Contains(rec.Body.String(), "explanation") {
		t.Errorf("issued test leaks answers: %s", rec.Body)
	}
	pub := decodeBody[assessment.PublicTest](t, rec)
	if len(pub.Questions) != 5 {
		t.Fatalf("got %d questions, want 5 for high", len(pub.Questions))
	}

	test, err := a.sessions.Load(context.Background(), pub.ID)
	if err != nil {
		t.Fatal(err)
	}
	answers := make([]map[string]any, len(test.Questions))
	for i, q := range test.Questions {
		answers[i] = map[string]any{"question_id": q.ID, "value": q.Options[q.CorrectIndex]}
	}

	rec = a.do(t, http.MethodPost, "/test/submit", map[string]any{
		"student_id": "s1", "topic_id": "what-is-ai", "test_id": pub.ID, "answers": answers,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body)
	}
	out := decodeBody[struct {
		Score    int  `json:"score"`
		Passed   bool `json:"passed"`
		NewBadge bool `json:"new_badge"`
		Progress struct {
			BadgeUnlocked bool   `json:"badge_unlocked"`
			Status        string `json:"status"`
		} `json:"progress"`
	}](t, rec)
	if out.Score != 100 || !out.Passed || !out.NewBadge || !out.Progress.BadgeUnlocked || out.Progress.Status != "test_passed" {
		t.Errorf("submit = %+v", out)
	}

	rec = a.do(t, http.MethodGet, "/students/s1/next", nil)
	next := decodeBody[struct {
		Done  bool             `json:"done"`
		Topic curriculum.Topic `json:"topic"`
	}](t, rec)
	if next.Done || next.Topic.ID != "how-machines-learn" {
		t.Errorf("next = %+v", next)
	}
}

func TestReadEndpoints(t *testing.T) {
	a := newTestAPI(t, nil, nil)
	a.do(t, http.MethodPost, "/lesson/complete", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "lesson": 1})

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"topics", "/topics", http.StatusOK, `"id":"what-is-ai"`},
		{"topic", "/topics/ai-bias", http.StatusOK, `"prerequisites":["how-machines-learn"]`},
		{"unknown topic", "/topics/nope", http.StatusNotFound, `"error"`},
		{"progress", "/students/s1/progress", http.StatusOK, `"status":"in_progress"`},
		{"no progress", "/students/s2/progress", http.StatusOK, `"progress":[]`},
		{"profile", "/students/s1/profile", http.StatusOK, `"lessons_completed":1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", rec.Body, tt.wantBody)
			}
		})
	}
}

func TestAdminEndpoints(t *testing.T) {
	a := newTestAPI(t, nil, nil)
	a.do(t, http.MethodPost, "/lesson/complete", map[string]any{"student_id": "s1", "topic_id": "what-is-ai", "lesson": 1})

	tests := []struct {
		name       string
		path       string
		auth       string
		wantStatus int
	}{
		{"no token", "/admin/results", "", http.StatusUnauthorized},
		{"wrong token", "/admin/results", "Bearer nope", http.StatusForbidden},
		{"results", "/admin/results?topic_id=what-is-ai", "Bearer " + adminToken, http.StatusOK},
		{"bad limit", "/admin/results?limit=0", "Bearer " + adminToken, http.StatusBadRequest},
		{"student", "/admin/students/s1", "Bearer " + adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.auth != "" {
				header = []string{"Authorization", tt.auth}
			}
			rec := a.do(t, http.MethodGet, tt.path, nil, header...)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	catalog, err := curriculum.Default()
	if err != nil {
		t.Fatal(err)
	}
	engine, err := learning.NewEngine(learning.Config{Catalog: catalog})
	if err != nil {
		t.Fatal(err)
	}
	h := New(Config{Engine: engine}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/admin/results", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
