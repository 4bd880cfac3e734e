package upstream

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why an upstream call failed.
type ErrorKind string

const (
	KindNetwork          ErrorKind = "network"
	KindTimeout          ErrorKind = "timeout"
	KindServerError      ErrorKind = "server_error"
	KindRateLimited      ErrorKind = "rate_limited"
	KindAuth             ErrorKind = "auth_error"
	KindClientError      ErrorKind = "client_error"
	KindMalformedPayload ErrorKind = "malformed_payload"
	KindCanceled         ErrorKind = "canceled"
	KindCircuitOpen      ErrorKind = "circuit_open"
	KindInvalidRequest   ErrorKind = "invalid_request"
)

// Transient reports whether the kind is worth another attempt.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServerError, KindRateLimited:
		return true
	default:
		return false
	}
}

// RequestError is the error carried by a Failed result from the executor.
type RequestError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Attempts   int
	RetryAfter time.Duration
	Err        error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %s after %d attempt(s)", e.Endpoint, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// Retryable reports whether the executor may try again.
func (e *RequestError) Retryable() bool { return e.Kind.Transient() }

// KindOf extracts the error kind from err, or "" when err is not a RequestError.
func KindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return ""
}
