// Package common defines shared constants and sentinel errors used across
// the auth server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// ErrorStorage marks failures coming from the database driver. Repositories
	// wrap the driver error together with it, so the cause stays reachable.
	ErrorStorage = errors.New("db error")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid, forged, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
)
