package models

import (
	"errors"
	"fmt"
)

// AuthenticationError indicates that every supported authentication protocol
// was exhausted without producing a usable token. It carries the last
// underlying cause from each protocol attempted so operators can diagnose
// both paths from a single message. This error is fatal to the run; retries,
// if any, belong to a caller-level policy.
type AuthenticationError struct {
	// ModernCause is the last failure from the OpenID-Connect password grant,
	// or nil if the modern protocol was never attempted.
	ModernCause error
	// LegacyCause is the failure from the legacy session-creation call,
	// or nil if the legacy protocol was never attempted.
	LegacyCause error
}

// Error returns a string representation of the authentication failure.
// It implements the error interface.
func (e *AuthenticationError) Error() string {
	switch {
	case e.ModernCause != nil && e.LegacyCause != nil:
		return fmt.Sprintf("authentication failed on all protocols: modern: %v; legacy: %v",
			e.ModernCause, e.LegacyCause)
	case e.ModernCause != nil:
		return fmt.Sprintf("authentication failed: modern: %v", e.ModernCause)
	case e.LegacyCause != nil:
		return fmt.Sprintf("authentication failed: legacy: %v", e.LegacyCause)
	default:
		return "authentication failed"
	}
}

// Unwrap exposes both protocol causes for errors.Is/errors.As inspection.
func (e *AuthenticationError) Unwrap() []error {
	var causes []error
	if e.ModernCause != nil {
		causes = append(causes, e.ModernCause)
	}
	if e.LegacyCause != nil {
		causes = append(causes, e.LegacyCause)
	}
	return causes
}

// TLSValidationError indicates a TLS handshake or certificate pinning failure.
// Pinning failures are distinguished from generic chain validation failures so
// operators can tell a rotated certificate apart from an untrusted one.
type TLSValidationError struct {
	// Pinned is true when the failure came from a thumbprint mismatch
	// rather than chain validation.
	Pinned bool
	// Expected is the configured thumbprint (pinning failures only).
	Expected string
	// Actual is the presented leaf certificate thumbprint (pinning failures only).
	Actual string
	// Cause is the underlying handshake error, if any.
	Cause error
}

// Error returns a string representation of the TLS failure.
// It implements the error interface.
func (e *TLSValidationError) Error() string {
	if e.Pinned {
		return fmt.Sprintf("tls certificate pinning failed: expected thumbprint %s, got %s",
			e.Expected, e.Actual)
	}
	if e.Cause != nil {
		return fmt.Sprintf("tls validation failed: %v", e.Cause)
	}
	return "tls validation failed"
}

// Unwrap returns the underlying handshake error.
func (e *TLSValidationError) Unwrap() error { return e.Cause }

// EndpointUnavailableError indicates that a specific endpoint is missing for
// this API version (HTTP 404 on a feature not present). It is recovered
// locally: the affected field is reported as unavailable rather than aborting
// the run.
type EndpointUnavailableError struct {
	// Path is the endpoint path that was not found.
	Path string
}

// Error returns a string representation of the unavailable endpoint.
// It implements the error interface.
func (e *EndpointUnavailableError) Error() string {
	return fmt.Sprintf("endpoint %s unavailable in this API version", e.Path)
}

// TransientNetworkError indicates a timeout, connection reset, or other
// network-level failure that the caller may retry with bounded backoff.
type TransientNetworkError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a string representation of the network failure.
// It implements the error interface.
func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network failure: %v", e.Cause)
}

// Unwrap returns the underlying transport error.
func (e *TransientNetworkError) Unwrap() error { return e.Cause }

// HistoryCorruptionError indicates an unreadable or malformed history file.
// It is always recovered by treating history as empty; it never aborts a run.
type HistoryCorruptionError struct {
	// Path is the history file path.
	Path string
	// Cause is the underlying read or decode error.
	Cause error
}

// Error returns a string representation of the history corruption.
// It implements the error interface.
func (e *HistoryCorruptionError) Error() string {
	return fmt.Sprintf("history file %s is corrupt: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying read or decode error.
func (e *HistoryCorruptionError) Unwrap() error { return e.Cause }

// IsEndpointUnavailable reports whether err is an EndpointUnavailableError
// anywhere in its chain.
func IsEndpointUnavailable(err error) bool {
	var target *EndpointUnavailableError
	return errors.As(err, &target)
}

// IsTransient reports whether err is a TransientNetworkError anywhere in
// its chain.
func IsTransient(err error) bool {
	var target *TransientNetworkError
	return errors.As(err, &target)
}

// IsAuthenticationFailure reports whether err is an AuthenticationError
// anywhere in its chain.
func IsAuthenticationFailure(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsTLSValidationFailure reports whether err is a TLSValidationError anywhere
// in its chain.
func IsTLSValidationFailure(err error) bool {
	var target *TLSValidationError
	return errors.As(err, &target)
}
