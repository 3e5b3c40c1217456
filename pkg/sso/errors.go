package sso

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates a misconfigured or unknown provider. It is
// the operator's problem, not the end user's; HTTP surfaces map it to a
// 4xx with the reason intact.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// AuthenticationError indicates a failed login attempt. Reason is safe to
// show to a browser; Cause (possibly carrying the raw identity provider
// failure) is for logs only and is stripped by SafeErrorMessage.
type AuthenticationError struct {
	Reason string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// NewAuthenticationError builds an AuthenticationError with no cause.
func NewAuthenticationError(format string, args ...interface{}) *AuthenticationError {
	return &AuthenticationError{Reason: fmt.Sprintf(format, args...)}
}

// SafeErrorMessage reduces any error from the federation path to a string
// that can be placed in a redirect or response body without leaking
// identity provider payloads or internal details.
func SafeErrorMessage(err error) string {
	var confErr *ConfigurationError
	if errors.As(err, &confErr) {
		return confErr.Reason
	}
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return "authentication failed"
}
