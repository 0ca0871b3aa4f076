package serve

import (
	"errors"
	"net/http"

	"github.com/holon-run/supportchat/pkg/assistant"
	holonlog "github.com/holon-run/supportchat/pkg/log"
	"github.com/holon-run/supportchat/pkg/session"
	"github.com/holon-run/supportchat/pkg/ticket"
)

// ErrorResponse is the body of every failed request. Error is a fixed,
// user-presentable sentence; details stay in the server log.
type ErrorResponse struct {
	Error string `json:"error"`
}

var userMessages = map[int]string{
	http.StatusUnauthorized:        "Authentication error. Please check the API configuration.",
	http.StatusNotFound:            "The requested resource was not found.",
	http.StatusRequestTimeout:      "The request timed out. Please try again.",
	http.StatusConflict:            "A reply is still being prepared for this conversation. Please wait.",
	http.StatusTooManyRequests:     "Too many requests. Please try again in a moment.",
	http.StatusInternalServerError: "An error occurred with the AI service. Please try again later.",
}

const unexpectedMessage = "An unexpected error occurred. Please try again."

// StatusFor classifies err into the HTTP status reported to the caller.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, session.ErrNotFound), errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound
	case ticket.IsValidation(err), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return assistant.StatusOf(err)
}

// UserMessage returns the sentence shown for status. Validation failures
// carry their own message.
func UserMessage(status int, err error) string {
	if status == http.StatusBadRequest {
		if ae, ok := assistant.AsError(err); ok && ae.Kind == assistant.KindValidation {
			return ae.Message
		}
		switch {
		case errors.Is(err, ticket.ErrInvalidEmail):
			return "A valid email address is required."
		case errors.Is(err, ticket.ErrEmptyIssue):
			return "Please describe the issue."
		case errors.Is(err, errBadRequest):
			return "Invalid request."
		}
		return unexpectedMessage
	}
	if msg, ok := userMessages[status]; ok {
		return msg
	}
	return unexpectedMessage
}

var errBadRequest = errors.New("bad request")

// badRequest marks a malformed request body.
func badRequest(err error) error {
	return &requestError{err: err}
}

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() []error {
	return []error{errBadRequest, e.err}
}

// failure logs the redacted detail of err and returns the status and
// sentence to report.
func (s *Server) failure(r *http.Request, err error) (int, string) {
	status := StatusFor(err)
	detail := s.redactor.Error(err)
	if status >= http.StatusInternalServerError {
		holonlog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", detail)
	} else {
		holonlog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", detail)
	}
	return status, UserMessage(status, err)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := s.failure(r, err)
	writeJSON(w, status, ErrorResponse{Error: msg})
}
