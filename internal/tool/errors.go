package tool

import (
	"errors"
	"fmt"

	"github.com/MrWong99/travelgenie/pkg/httpx"
)

// NotFoundError reports a tool name that is absent from the registry. It
// matches [ErrNotFound] with errors.Is.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrNotFound, e.Name)
}

// Is reports whether target is [ErrNotFound].
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConfigurationError reports a capability whose required credential or client
// is missing. It is recorded in the status table at startup instead of
// aborting the process, and returned for every call to that tool.
type ConfigurationError struct {
	Tool   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured: %s", e.Tool, e.Reason)
}

// UpstreamError wraps a non-success response from an external API.
type UpstreamError struct {
	// Service names the upstream API, e.g. "booking".
	Service string

	// Code is the HTTP status code the API answered with.
	Code int

	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// classify wraps err as an [UpstreamError] when an upstream response is in its
// chain. Any other error is returned unchanged.
func classify(err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		return &UpstreamError{Service: se.Service, Code: se.Code, Err: err}
	}
	return err
}
