package httpserver

import "github.com/pkg/errors"

// StatusError carries the HTTP status spec.md §7's error taxonomy maps an
// error to. errors.Cause recovers the wrapped cause for logging while the
// connection loop only ever inspects the typed StatusError.
type StatusError struct {
	Status int
	cause  error
}

func (e *StatusError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return "httpserver: status error"
}

func (e *StatusError) Cause() error { return e.cause }

// newStatusError wraps cause (via errors.WithStack, so errors.Cause recovers
// the original) tagged with the HTTP status that should be sent for it.
func newStatusError(status int, cause error) *StatusError {
	return &StatusError{Status: status, cause: errors.WithStack(cause)}
}

func statusErrorf(status int, format string, args ...interface{}) *StatusError {
	return &StatusError{Status: status, cause: errors.Errorf(format, args...)}
}

// ErrDisconnect marks a peer EOF mid-request (spec.md §7 "Disconnect"):
// the per-connection loop exits silently, no response is sent.
var ErrDisconnect = errors.New("httpserver: peer disconnected")

// ErrHijacked is returned by operations attempted after a connection has
// been taken over by DropAll/Close.
var ErrHijacked = errors.New("httpserver: connection closed")

// statusFor maps any error surfacing from the request/prepare pipeline to
// an HTTP status, defaulting unclassified errors to 503 per spec.md §4.4
// step 4 ("Dispose").
func statusFor(err error) int {
	if se, ok := err.(*StatusError); ok {
		return se.Status
	}
	return 503
}
