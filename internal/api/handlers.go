package api

import (
	"net/http"

	"github.com/p-n-ai/ai-literacy/internal/curriculum"
	"github.com/p-n-ai/ai-literacy/internal/learning"
	"github.com/p-n-ai/ai-literacy/internal/progress"
)

// lessonRequest is the body of the lesson and test endpoints. Lesson is the
// 1-based step; 0 means the current one.
type lessonRequest struct {
	StudentID string `json:"student_id"`
	TopicID   string `json:"topic_id"`
	Lesson    int    `json:"lesson"`
	GradeBand string `json:"grade_band"`
}

// progressJSON adds the derived status to a progress record.
type progressJSON struct {
	progress.Record
	Status progress.Status `json:"status"`
}

func withStatus(rec progress.Record) progressJSON {
	return progressJSON{Record: rec, Status: rec.Status()}
}

func (s *Server) handleLessonStart(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.engine.StartLesson(r.Context(), req.StudentID, req.TopicID, req.Lesson)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Lesson   curriculum.Lesson `json:"lesson"`
		Progress progressJSON      `json:"progress"`
	}{view.Lesson, withStatus(view.Progress)})
}

func (s *Server) handleLessonComplete(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rec, err := s.engine.CompleteLesson(r.Context(), req.StudentID, req.TopicID, req.Lesson)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withStatus(rec))
}

func (s *Server) handleTestGenerate(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	test, err := s.engine.GenerateTest(r.Context(), req.StudentID, req.TopicID, req.GradeBand)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (s *Server) handleTestSubmit(w http.ResponseWriter, r *http.Request) {
	var sub learning.Submission
	if err := decode(w, r, &sub); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.engine.SubmitTest(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		learning.Outcome
		Progress progressJSON `json:"progress"`
	}{out, withStatus(out.Progress)})
}

func (s *Server) handleTopics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.engine.Topics()})
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	t, err := s.engine.Topic(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStudentProgress(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	recs, err := s.engine.Progress(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]progressJSON, len(recs))
	for i, rec := range recs {
		out[i] = withStatus(rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "progress": out})
}

func (s *Server) handleStudentNext(w http.ResponseWriter, r *http.Request) {
	t, ok, err := s.engine.NextTopic(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"done": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"done": false, "topic": t})
}

func (s *Server) handleStudentProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

