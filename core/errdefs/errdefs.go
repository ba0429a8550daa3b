// Package errdefs defines the error taxonomy shared by the session core and
// the backend service clients.
//
// The categories matter more than the concrete types: configuration problems
// are fatal and not retryable, validation problems are rejected before any
// network call, transport problems carry upstream detail and may be retried,
// empty results are upstream successes with no usable content, and
// cancellations are never surfaced to the user.
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled marks work that was explicitly aborted.
var ErrCancelled = errors.New("cancelled")

// ErrSuperseded marks a stage result that arrived after a newer generation
// took over. It is a cancellation for surfacing purposes.
var ErrSuperseded = fmt.Errorf("superseded: %w", ErrCancelled)

// ConfigurationError reports missing credentials or identifiers for a backend
// service. It is raised at construction time, before any call is attempted.
type ConfigurationError struct {
	Service string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: missing %s", e.Service, strings.Join(e.Missing, ", "))
}

// ValidationError reports input rejected before any network call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// TransportError reports a failed upstream call or a non-success status,
// with whatever detail text the upstream returned.
type TransportError struct {
	Service string
	Detail  string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s request failed: %s", e.Service, e.Detail)
	}
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EmptyResultError reports an upstream call that succeeded but returned no
// usable content.
type EmptyResultError struct {
	Service string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s returned no content", e.Service)
}

// DeviceError reports a failure to acquire or drive the capture device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio device: %s", e.Op)
	}
	return fmt.Sprintf("audio device: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsCancellation reports whether err represents superseded or aborted work
// that must be discarded silently.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
