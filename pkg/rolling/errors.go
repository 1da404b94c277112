package rolling

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorClass represents a classification of per-request failures.
type ErrorClass string

const (
	// ClassRequest represents a request that could not be constructed
	// (malformed URL or method, unencodable form).
	ClassRequest ErrorClass = "request"

	// ClassTimeout represents a call that exceeded the configured timeout.
	ClassTimeout ErrorClass = "timeout"

	// ClassNetwork represents transport failures (connection refused,
	// DNS, TLS).
	ClassNetwork ErrorClass = "network"
)

// RequestError is the error outcome recorded for a single dispatched
// request. It never aborts the window it belongs to.
type RequestError struct {
	URL    string
	Method string
	Class  ErrorClass
	Err    error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a per-request timeout outcome.
func IsTimeout(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Class == ClassTimeout
}

// classifyError categorizes a transport error for observability.
func classifyError(err error) ErrorClass {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ClassTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	return ClassNetwork
}
