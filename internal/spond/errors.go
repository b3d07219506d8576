package spond

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrAuth          = errors.New("spond: authentication failed")
	ErrTransport     = errors.New("spond: request failed")
	ErrDecode        = errors.New("spond: unexpected response body")
	ErrNotLoggedIn   = errors.New("spond: no access token, login first")
	ErrGroupNotFound = errors.New("spond: group not found")
)

// AuthError reports a failed login: transport failure, a rejected login,
// a body that is not JSON or a body without a login token.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := "spond: login: " + e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	return withCause(ErrAuth, e.Err)
}

// TransportError reports a non-login HTTP failure.
type TransportError struct {
	Operation string
	URL       string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("spond: %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return withCause(ErrTransport, e.Err)
}

// DecodeError reports a response body that is not valid JSON or not of the
// expected shape.
type DecodeError struct {
	Operation string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("spond: %s: decode response: %v", e.Operation, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return withCause(ErrDecode, e.Err)
}

func withCause(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
