// Package gwerr defines the gateway's error taxonomy. Only the HTTP layer
// translates these into status codes and wire envelopes.
package gwerr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthAbsent means no credentials are stored for the provider.
	ErrAuthAbsent = errors.New("no credentials stored; please authenticate using the CLI")

	// ErrAuthExpired means stored credentials are expired and could not be refreshed.
	ErrAuthExpired = errors.New("OAuth expired; please authenticate using the CLI")
)

// UpstreamStatusError carries a non-200 upstream response. The status and
// body are passed through to the client, reshaped to its dialect.
type UpstreamStatusError struct {
	Status int
	Body   []byte
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// ClientError is a request validation failure, returned as HTTP 400 with a
// field-level reason.
type ClientError struct {
	Field  string
	Reason string
}

func (e *ClientError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Clientf builds a ClientError for a request field.
func Clientf(field, format string, args ...interface{}) *ClientError {
	return &ClientError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TransportError is a timeout or dropped connection talking to an upstream.
// Non-streaming paths surface it as 502; streams convert it to an in-band
// error frame.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedUpstreamError is a JSON decode failure or missing required field
// in an upstream response body. Surfaced as 502.
type MalformedUpstreamError struct {
	Detail string
}

func (e *MalformedUpstreamError) Error() string {
	return "malformed upstream response: " + e.Detail
}
