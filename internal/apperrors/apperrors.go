// Package apperrors defines the sentinel error kinds shared by the storage,
// service, and HTTP layers. Handlers map these kinds to HTTP statuses.
package apperrors

import "errors"

var (
	// ErrConflict indicates a uniqueness violation: a duplicate email on
	// registration or a short code that is already taken.
	ErrConflict = errors.New("resource already exists")

	// ErrUnauthorized indicates bad credentials or an invalid, expired,
	// or revoked token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a valid identity acting on a resource it
	// does not own.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound indicates an unknown short code or user resource.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a malformed request: invalid URL, weak
	// password, missing fields.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates that the storage backend or another
	// dependency is unreachable or timed out.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrURLExpired is tracked separately from ErrNotFound inside the
	// service, though the HTTP surface reports both as 404.
	ErrURLExpired = errors.New("the URL is expired")

	// ErrCodeSpaceExhausted is returned when generating a unique short
	// code failed after the bounded number of retries.
	ErrCodeSpaceExhausted = errors.New("short code space exhausted")
)
