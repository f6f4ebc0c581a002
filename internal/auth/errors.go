package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken covers every token failure: expired, malformed,
	// bad signature, wrong type, stale lineage. Callers must not
	// surface which check failed.
	ErrInvalidToken = errors.New("auth: invalid token")
)
