package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	KindTransport    ErrorKind = "transport"
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindState        ErrorKind = "state"
	KindNotFound     ErrorKind = "not_found"
	KindServer       ErrorKind = "server"
)

// TransportMessage is shown for every network-level failure.
const TransportMessage = "Unable to reach the server. Please check your connection and try again."

const sessionMessage = "Your session is missing or has expired. Please sign in again."

// FieldError is one field-level validation failure reported by the backend.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned by every Client method that fails.
type Error struct {
	Kind     ErrorKind
	Status   int
	Messages []string
	Fields   []FieldError
	Err      error
}

func (e *Error) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" if it is not a backend error.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Messages returns the user-facing messages of err. A non-backend error
// yields its own text.
func Messages(err error) []string {
	var be *Error
	if errors.As(err, &be) && len(be.Messages) > 0 {
		return be.Messages
	}
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}

type errorBody struct {
	Error  string       `json:"error"`
	Errors []FieldError `json:"errors"`
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Messages: []string{TransportMessage}, Err: err}
}

func unauthorizedError(err error) *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Messages: []string{sessionMessage}, Err: err}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindState
	default:
		return KindServer
	}
}

// statusError builds the error for a non-2xx response. Validation errors
// carry one message per field error.
func statusError(status int, body errorBody) *Error {
	e := &Error{Kind: kindForStatus(status), Status: status, Fields: body.Errors}
	for _, fe := range body.Errors {
		if fe.Field != "" {
			e.Messages = append(e.Messages, fe.Field+": "+fe.Message)
		} else {
			e.Messages = append(e.Messages, fe.Message)
		}
	}
	if len(e.Messages) == 0 {
		msg := body.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		e.Messages = []string{msg}
	}
	return e
}
