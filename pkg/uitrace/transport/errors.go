package transport

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport construction and use.
var (
	// ErrUnsupportedScheme indicates a beacon URL no transport handles.
	ErrUnsupportedScheme = errors.New("unsupported beacon URL scheme")

	// ErrEmptyURL indicates an empty beacon URL.
	ErrEmptyURL = errors.New("empty beacon URL")

	// ErrClosed indicates the transport was used after Close.
	ErrClosed = errors.New("transport closed")
)

// StatusError reports a non-success HTTP response from a collector.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("collector %s returned HTTP %d", e.Endpoint, e.StatusCode)
}
