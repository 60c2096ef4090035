package api

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindInvalidArgument          ErrorKind = "invalid_argument"
	KindPreviousResponseNotFound ErrorKind = "previous_response_not_found"
	KindNotFound                 ErrorKind = "not_found"
	KindMaxToolCallsExceeded     ErrorKind = "max_tool_calls_exceeded"
	KindUpstream                 ErrorKind = "upstream_error"
	KindFilterApplication        ErrorKind = "filter_application_failure"
	KindStorage                  ErrorKind = "storage_failure"
)

// HTTPStatus maps an error kind to the status the transport returns.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidArgument, KindFilterApplication:
		return http.StatusBadRequest
	case KindPreviousResponseNotFound, KindNotFound:
		return http.StatusNotFound
	case KindMaxToolCallsExceeded:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidArgumentf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the typed error from a chain, or wraps the given error
// with the fallback kind.
func AsError(err error, fallback ErrorKind) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: fallback, Message: err.Error(), Err: err}
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
