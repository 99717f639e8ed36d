// Package vault derives the database encryption key from a passphrase.
//
// The vault file holds no key material. It stores an Argon2id verifier of
// the passphrase and the salt used for key derivation:
//
//	{
//	  "version": 1,
//	  "key_salt": "<base64>",
//	  "verifier": "$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>",
//	  "created_at": "2026-10-01T09:00:00Z"
//	}
//
// Unlock checks the passphrase, derives a 32-byte key with the verifier's
// parameters and applies it to the connection with PRAGMA key. The key and
// passphrase are never logged.
package vault
