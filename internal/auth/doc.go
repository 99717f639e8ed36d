// Package auth issues and validates API access tokens.
//
// Tokens are HS256 JWTs handed out by the unlock endpoint. They are
// validated by signature and expiry only, with no database lookup, so
// requests can be authenticated while the database is still locked.
package auth
