package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/ai-literacy/internal/learning"
)

const (
	chatReadLimit = 8 << 10
	resetCommand  = "/start"
)

// chatIn is a frame sent by the student.
type chatIn struct {
	Text    string `json:"text"`
	TopicID string `json:"topic_id,omitempty"`
}

// chatOut is a frame sent to the student.
type chatOut struct {
	Type           string `json:"type"` // "reply", "reset" or "error"
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Blocked        bool   `json:"blocked,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
}

// handleChat upgrades to a WebSocket and answers each student frame with a
// tutor reply. The student id comes from the query string.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		writeError(w, r, learning.ErrInvalidRequest)
		return
	}
	topicID := r.URL.Query().Get("topic_id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("chat upgrade failed", "student_id", studentID, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(chatReadLimit)

	slog.Info("chat connected", "student_id", studentID)
	err = s.chatLoop(r.Context(), conn, studentID, topicID)

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		slog.Info("chat closed", "student_id", studentID)
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	default:
		slog.Warn("chat ended", "student_id", studentID, "error", err)
		conn.Close(websocket.StatusInternalError, "")
	}
}

func (s *Server) chatLoop(ctx context.Context, conn *websocket.Conn, studentID, topicID string) error {
	for {
		var in chatIn
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			return err
		}
		if in.TopicID != "" {
			topicID = in.TopicID
		}

		var out chatOut
		if strings.TrimSpace(in.Text) == resetCommand {
			if err := s.engine.ResetChat(ctx, studentID); err != nil {
				slog.Error("chat reset failed", "student_id", studentID, "error", err)
				out = chatOut{Type: "error", Text: "Could not start a new conversation."}
			} else {
				out = chatOut{Type: "reset", Text: "Started a new conversation. What would you like to learn about AI?"}
			}
		} else {
			reply, err := s.engine.Chat(ctx, learning.ChatMessage{StudentID: studentID, TopicID: topicID, Text: in.Text})
			if err != nil {
				out = chatOut{Type: "error", Text: err.Error()}
			} else {
				out = chatOut{
					Type:           "reply",
					Text:           reply.Text,
					ConversationID: reply.ConversationID,
					Blocked:        reply.Blocked,
					Degraded:       reply.Degraded,
				}
			}
		}

		if err := wsjson.Write(ctx, conn, out); err != nil {
			return err
		}
	}
}
