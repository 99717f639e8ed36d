package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultParams follows the OWASP Argon2id recommendation.
var DefaultParams = Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
}

const (
	keyLen  = 32
	saltLen = 16
)

// newSalt returns saltLen random bytes.
func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// hashVerifier hashes passphrase into PHC string format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
func hashVerifier(passphrase string, p Params) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// checkVerifier reports whether passphrase matches the PHC verifier and
// returns the verifier's cost parameters.
func checkVerifier(passphrase, encoded string) (bool, Params, error) {
	salt, hash, p, err := decodePHC(encoded)
	if err != nil {
		return false, Params{}, err
	}

	candidate := argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, uint32(len(hash))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(hash, candidate) == 1, p, nil
}

// deriveKey derives the database key with the same cost as the verifier.
func deriveKey(passphrase string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.Memory, p.Threads, keyLen)
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, hash []byte, p Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, nil, p, fmt.Errorf("%w: invalid PHC format", ErrCorruptVault)
	}

	if parts[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("%w: unsupported algorithm %s", ErrCorruptVault, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, p, fmt.Errorf("%w: parsing version: %w", ErrCorruptVault, err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("%w: unsupported argon2 version %d", ErrCorruptVault, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, p, fmt.Errorf("%w: parsing parameters: %w", ErrCorruptVault, err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, p, fmt.Errorf("%w: decoding salt: %w", ErrCorruptVault, err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, p, fmt.Errorf("%w: decoding hash: %w", ErrCorruptVault, err)
	}

	return salt, hash, p, nil
}
