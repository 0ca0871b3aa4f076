package assistant

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an assistant error.
type Kind string

const (
	KindService           Kind = "service"
	KindConfig            Kind = "config"
	KindValidation        Kind = "validation"
	KindRunFailed         Kind = "run_failed"
	KindRunCancelled      Kind = "run_cancelled"
	KindTimeout           Kind = "timeout"
	KindUnexpectedStatus  Kind = "unexpected_status"
	KindUnexpectedContent Kind = "unexpected_content"
	KindConflict          Kind = "conflict"
)

// Error is the single error shape surfaced by the assistant layer.
// Status is 0 when the failure carried no status (e.g. a network error).
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Code    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus lets the retry executor classify the failure.
func (e *Error) HTTPStatus() int {
	return e.Status
}

// ResponseStatus is the status to report to HTTP callers: the classified
// status or 500 when none is known.
func (e *Error) ResponseStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, status int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Status: status, Message: fmt.Sprintf(format, args...)}
}

// wrap normalizes err into an *Error with the given message, keeping the
// status and code of any *Error found in the chain.
func wrap(message string, err error) *Error {
	out := &Error{Kind: KindService, Message: message, Err: err}
	var ae *Error
	if errors.As(err, &ae) {
		out.Status = ae.Status
		out.Code = ae.Code
		if ae.Kind != "" {
			out.Kind = ae.Kind
		}
		return out
	}
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		out.Status = sc.HTTPStatus()
	}
	return out
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of the *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	if ae, ok := AsError(err); ok {
		return ae.Kind
	}
	return ""
}

// StatusOf returns the caller-facing status for err: the classified status
// or 500.
func StatusOf(err error) int {
	if ae, ok := AsError(err); ok {
		return ae.ResponseStatus()
	}
	return http.StatusInternalServerError
}

// IsTimeout reports whether err is a run timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsRunFailure reports whether the run ended failed or cancelled.
func IsRunFailure(err error) bool {
	k := KindOf(err)
	return k == KindRunFailed || k == KindRunCancelled
}

// IsRateLimited reports whether the service rejected the call with 429.
func IsRateLimited(err error) bool {
	ae, ok := AsError(err)
	return ok && ae.Status == http.StatusTooManyRequests
}
