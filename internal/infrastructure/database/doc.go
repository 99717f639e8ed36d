// Package database provides the prepared-statement cache and query executor
// over the encrypted SQLite store used by notesnook.
//
// This package manages:
//   - One native connection per Connection, opened through an Engine
//   - A per-connection cache of compiled statements keyed by SQL text
//   - Bounded retries of failed compilations
//   - Result normalization (rows, affected count and insert id as big integers)
//   - Deferred loading of the search extensions once the database is readable
//   - Schema migrations run through the executor itself
//
// Encryption:
//
// Open never applies a key. The caller issues the key pragma through Execute;
// until then every query fails and the readiness check reports false. The
// first call after the database becomes readable registers the trigram and
// HTML full-text-search extensions.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Engine errors carry the SQL text, never the bound parameter values
//
// Usage:
//
//	conn := database.NewConnection(database.NewSQLiteEngine(database.SQLiteConfig{
//	    ExtensionDir: cfg.Database.ExtensionDir,
//	    BusyTimeout:  cfg.Database.BusyTimeout,
//	}))
//	if err := conn.Open(ctx, cfg.Database.Path); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	res, err := conn.Execute(ctx, "SELECT id, title FROM notes WHERE pinned = ?", 1)
//
// Migration Strategy:
//
// Migrations are embedded by the migrations package and applied in version
// order, each in its own transaction:
//   - Filenames follow YYYYMMDD_HHMMSS_description.up.sql
//   - Each migration should ship a matching .down.sql
package database
