// Package common contains shared constants, sentinel errors, and small
// helpers used across the user API components. Callers should use
// errors.Is to match the sentinel values.
package common

import "errors"

var (
	// Entity absent (user, role, page past the end).
	ErrorNotFound = errors.New("not found")

	// Uniqueness violation, e.g. duplicate email on register or update.
	ErrorConflict = errors.New("already exists")

	// Bad credentials or inactive account.
	ErrorUnauthorized = errors.New("unauthorized")

	// Valid token lacking one or more required roles.
	ErrorForbidden = errors.New("forbidden")

	// Request was valid but left the store in an inconsistent state,
	// e.g. the user vanished during a password reset.
	ErrorUnprocessable = errors.New("unprocessable")

	// Malformed, tampered or expired token. The cases are deliberately
	// not distinguished to the caller.
	ErrInvalidToken = errors.New("invalid token")

	// Unexpected failure of a collaborator (database, crypto).
	ErrorInternal = errors.New("internal error")
)
