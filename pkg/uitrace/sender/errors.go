package sender

import (
	"errors"
	"fmt"
)

// ErrSenderClosed indicates Send or Flush was called after Close.
var ErrSenderClosed = errors.New("sender closed")

// TransmitError wraps a failed batch transmission.
type TransmitError struct {
	// Endpoint is the transport destination.
	Endpoint string
	// Events is the number of events in the lost batch.
	Events int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit %d events to %s: %v", e.Events, e.Endpoint, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TransmitError) Unwrap() error {
	return e.Err
}
