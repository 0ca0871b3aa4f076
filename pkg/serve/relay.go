package serve

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/holon-run/supportchat/pkg/assistant"
	holonlog "github.com/holon-run/supportchat/pkg/log"
)

// registerRelay mounts the thread/run endpoints spoken by
// assistant.ProxyTransport, forwarding each call once to the configured
// transport. Retries and polling stay with the caller.
func (s *Server) registerRelay(mux *http.ServeMux) {
	mux.HandleFunc("POST /assistant/threads", s.relayAuth(s.handleRelayCreateThread))
	mux.HandleFunc("POST /assistant/threads/{thread}/messages", s.relayAuth(s.handleRelayCreateMessage))
	mux.HandleFunc("GET /assistant/threads/{thread}/messages", s.relayAuth(s.handleRelayListMessages))
	mux.HandleFunc("POST /assistant/threads/{thread}/runs", s.relayAuth(s.handleRelayCreateRun))
	mux.HandleFunc("GET /assistant/threads/{thread}/runs/{run}", s.relayAuth(s.handleRelayRetrieveRun))
}

func (s *Server) relayAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RelayToken != "" {
			got := r.Header.Get("Authorization")
			want := "Bearer " + s.cfg.RelayToken
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				writeRelayError(w, http.StatusUnauthorized, "invalid relay token", "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleRelayCreateThread(w http.ResponseWriter, r *http.Request) {
	id, err := s.cfg.Relay.CreateThread(r.Context())
	if err != nil {
		s.relayFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assistant.ThreadResponse{ID: id})
}

func (s *Server) handleRelayCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req assistant.CreateMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeRelayError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}
	msg, err := s.cfg.Relay.CreateMessage(r.Context(), r.PathValue("thread"), req.Content)
	if err != nil {
		s.relayFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleRelayListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.cfg.Relay.ListMessages(r.Context(), r.PathValue("thread"))
	if err != nil {
		s.relayFailure(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []assistant.Message{}
	}
	writeJSON(w, http.StatusOK, assistant.MessageList{Data: msgs})
}

func (s *Server) handleRelayCreateRun(w http.ResponseWriter, r *http.Request) {
	var req assistant.CreateRunRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeRelayError(w, http.StatusBadRequest, err.Error(), "invalid_request")
		return
	}
	assistantID := req.AssistantID
	if assistantID == "" {
		assistantID = s.cfg.RelayAssistantID
	}
	if assistantID == "" {
		writeRelayError(w, http.StatusBadRequest, "assistant_id is required", "invalid_request")
		return
	}
	run, err := s.cfg.Relay.CreateRun(r.Context(), r.PathValue("thread"), assistantID)
	if err != nil {
		s.relayFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRelayRetrieveRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.cfg.Relay.RetrieveRun(r.Context(), r.PathValue("thread"), r.PathValue("run"))
	if err != nil {
		s.relayFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// relayFailure passes the upstream status and code through so the calling
// client can apply its own retry policy.
func (s *Server) relayFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := assistant.StatusOf(err)
	code := ""
	msg := s.redactor.Error(err)
	if ae, ok := assistant.AsError(err); ok {
		code = ae.Code
		msg = s.redactor.String(ae.Message)
	}
	holonlog.Warn("relay call failed", "path", r.URL.Path, "status", status, "error", s.redactor.Error(err))
	writeRelayError(w, status, msg, code)
}

func writeRelayError(w http.ResponseWriter, status int, message, code string) {
	var body assistant.ErrorBody
	body.Error.Message = message
	body.Error.Code = code
	writeJSON(w, status, body)
}
