package serve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/holon-run/supportchat/pkg/chat"
	holonlog "github.com/holon-run/supportchat/pkg/log"
	"github.com/holon-run/supportchat/pkg/session"
)

// ChatRequest is the body of POST /chat and of each /chat/ws frame.
type ChatRequest struct {
	Message   string `json:"message"`
	ThreadID  string `json:"threadId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// ChatResponse carries the cleaned reply and the thread to continue on.
type ChatResponse struct {
	Message       string    `json:"message"`
	ThreadID      string    `json:"threadId"`
	SessionID     string    `json:"sessionId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SuggestTicket bool      `json:"suggestTicket,omitempty"`
	OffTopic      bool      `json:"offTopic,omitempty"`
}

// WSError is the frame sent back on /chat/ws when a turn fails.
type WSError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}

	// The turn outlives a client disconnect so the thread is left consistent.
	resp, err := s.runTurn(context.WithoutCancel(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		holonlog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := context.WithoutCancel(r.Context())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				holonlog.Debug("websocket closed", "error", err)
			}
			return
		}

		var frame interface{}
		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			status, msg := s.failure(r, badRequest(err))
			frame = WSError{Error: msg, Status: status}
		} else if resp, err := s.runTurn(ctx, req); err != nil {
			status, msg := s.failure(r, err)
			frame = WSError{Error: msg, Status: status}
		} else {
			frame = resp
		}

		if err := conn.WriteJSON(frame); err != nil {
			holonlog.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// runTurn resolves the thread (from the request or its session), runs the
// turn, applies the reply policy and records the exchange on the session.
func (s *Server) runTurn(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	threadID := strings.TrimSpace(req.ThreadID)
	if req.SessionID != "" {
		if s.cfg.Sessions == nil {
			return nil, badRequest(errors.New("sessions are not enabled"))
		}
		sess, err := s.cfg.Sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		if threadID == "" && sess.ThreadID != nil {
			threadID = *sess.ThreadID
		}
	}

	sent := s.now().UTC()
	reply, err := s.cfg.Chat.HandleTurn(ctx, chat.Turn{Message: req.Message, ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	verdict := s.policy.Apply(reply)

	if req.SessionID != "" {
		_, err := s.cfg.Sessions.RecordTurn(ctx, req.SessionID, reply.ThreadID,
			session.Message{Role: session.RoleUser, Content: req.Message, Timestamp: sent},
			session.Message{Role: session.RoleAssistant, Content: reply.Text, Timestamp: reply.Timestamp.UTC()})
		if err != nil {
			// The user still gets the reply; only the transcript is behind.
			holonlog.Warn("failed to record session turn", "session_id", req.SessionID, "error", s.redactor.Error(err))
		}
	}

	return &ChatResponse{
		Message:       reply.Text,
		ThreadID:      reply.ThreadID,
		SessionID:     req.SessionID,
		Timestamp:     reply.Timestamp,
		SuggestTicket: verdict.SuggestTicket,
		OffTopic:      verdict.OffTopic,
	}, nil
}

// originChecker allows same-origin upgrades, plus the listed origins ("*"
// allows any).
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
