package gosocks

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrClosed             = errors.New("gosocks: connection closed")
	ErrNotConnected       = errors.New("gosocks: not connected")
	ErrNotSubscribed      = errors.New("gosocks: channel does not exist")
	ErrNotPrivate         = errors.New("gosocks: channel is not private")
	ErrUnknownChannel     = errors.New("gosocks: unknown channel")
	ErrMissingField       = errors.New("gosocks: missing required field")
	ErrUnexpectedResponse = errors.New("gosocks: unexpected handshake response")
)

// TransportError represents a connection-level error.
type TransportError struct {
	Op  string
	URL string
	// StatusCode is the HTTP status of a failed handshake, if any.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.URL != "" && e.StatusCode != 0:
		return fmt.Sprintf("gosocks: %s %s (HTTP %d): %v", e.Op, e.URL, e.StatusCode, e.Err)
	case e.URL != "":
		return fmt.Sprintf("gosocks: %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("gosocks: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CloseError is returned by a Transport when the peer closed the connection.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gosocks: closed with status %d: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("gosocks: closed with status %d", e.Code)
}

// DecodeError represents an inbound payload that could not be decoded.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gosocks: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PolicyError is returned when publishing to a channel that does not accept
// client messages.
type PolicyError struct {
	Channel string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("gosocks: cannot publish to %q: channel is not private", e.Channel)
}

func (e *PolicyError) Unwrap() error {
	return ErrNotPrivate
}

// NotSubscribedError is returned when an operation targets a channel that is
// not in the session's registry.
type NotSubscribedError struct {
	Op      string
	Channel string
}

func (e *NotSubscribedError) Error() string {
	return fmt.Sprintf("gosocks: %s %q: channel does not exist", e.Op, e.Channel)
}

func (e *NotSubscribedError) Unwrap() error {
	return ErrNotSubscribed
}
