// Package api implements the local HTTP API and WebSocket server for notesnookd.
//
// This package provides:
//   - Health endpoint reporting the database lifecycle state
//   - Unlock endpoint applying the vault key and issuing access tokens
//   - REST endpoints for note CRUD and search
//   - Audit trail listing of unlocks and note mutations
//   - WebSocket hub broadcasting note mutations and database state changes
//   - Middleware stack (request ID, logging, recovery, CORS, bearer auth)
//
// # Locked Database
//
// Until the database answers the readiness check, note and audit routes answer
// 503 with code "database_locked". Health and unlock always respond.
//
// # Security
//
// When a JWT secret is configured, note, audit and WebSocket routes require an
// access token from POST /api/v1/unlock. Without a secret the server is meant
// for loopback use only and performs no authentication.
package api
