package vault

import "errors"

var (
	// ErrWrongPassphrase is returned when a passphrase does not match the verifier.
	ErrWrongPassphrase = errors.New("wrong passphrase")

	// ErrWeakPassphrase is returned when a new passphrase is too short.
	ErrWeakPassphrase = errors.New("passphrase too short")

	// ErrAlreadyInitialized is returned by Initialize when a vault file exists.
	ErrAlreadyInitialized = errors.New("vault already initialized")

	// ErrNotInitialized is returned when deriving a key before Initialize.
	ErrNotInitialized = errors.New("vault not initialized")

	// ErrCorruptVault is returned when the vault file cannot be decoded.
	ErrCorruptVault = errors.New("corrupt vault file")
)

// ErrStillLocked is returned when the database is not readable after the
// key was applied, usually because the file was encrypted with another key.
var ErrStillLocked = errors.New("database still locked after applying key")
