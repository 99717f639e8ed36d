package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, expiry or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrNoSecret is returned when signing without a configured secret.
	ErrNoSecret = errors.New("no token secret configured")
)
