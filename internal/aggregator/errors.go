package aggregator

import (
	"errors"
	"fmt"

	"feedgrid/internal/model"
)

var (
	// ErrAuth is returned when the upstream rejects the credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrNotSupported is returned when a backend lacks a capability.
	ErrNotSupported = errors.New("not supported by this aggregator")
	// ErrNotFound is returned when an item, feed or group does not exist.
	ErrNotFound = errors.New("not found")
)

// UpstreamError reports a failed call to the upstream aggregator.
type UpstreamError struct {
	Backend model.Kind
	Op      string
	// StatusCode is zero for transport failures.
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Backend, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
