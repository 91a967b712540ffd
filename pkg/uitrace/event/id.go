package event

import "github.com/google/uuid"

// IDSource produces unique identifiers for events, traces and components.
type IDSource interface {
	NewID() string
}

// UUIDSource generates random (version 4) UUIDs.
type UUIDSource struct{}

// NewID implements IDSource.
func (UUIDSource) NewID() string {
	return uuid.New().String()
}

// IDFunc adapts a function to the IDSource interface.
type IDFunc func() string

// NewID implements IDSource.
func (f IDFunc) NewID() string {
	return f()
}
