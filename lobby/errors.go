// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import "errors"

// AuthError rejects a request for identity reasons: bad credentials,
// a duplicate session, or a missing login. The connection survives.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// ValidationError rejects a request whose preconditions do not hold:
// wrong room status, not the owner, capacity exceeded, below the
// minimum player count. State is unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ResourceError reports a launch-time resource failure: port range
// exhausted, missing package, spawn failure. The caller may retry.
type ResourceError struct {
	Message string
}

func (e *ResourceError) Error() string {
	return e.Message
}

func authErrorf(message string) error {
	return &AuthError{Message: message}
}

func validationErrorf(message string) error {
	return &ValidationError{Message: message}
}

func resourceErrorf(message string) error {
	return &ResourceError{Message: message}
}

// userMessage reports whether err is safe to echo to the client, and
// the message to send. Anything outside the request-fatal taxonomy is
// masked so storage internals never leak to players.
func userMessage(err error) (string, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message, true
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message, true
	}
	var resourceErr *ResourceError
	if errors.As(err, &resourceErr) {
		return resourceErr.Message, true
	}
	return "internal error", false
}
