package database

import "context"

// Engine opens native handles to an embedded database file.
//
// The executor never talks to SQLite directly; everything goes through these
// interfaces so the cache, retry and readiness logic can be exercised against
// a scripted engine in tests.
type Engine interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// Handle is a single open database file.
type Handle interface {
	// Prepare compiles one SQL statement.
	Prepare(ctx context.Context, sql string) (Statement, error)

	// Exec runs a script that may contain several statements and returns no rows.
	Exec(ctx context.Context, script string) error

	// LoadExtension registers a native extension by name.
	LoadExtension(ctx context.Context, name string) error

	Close() error
}

// Statement is a compiled statement owned by a Handle.
type Statement interface {
	// Reader reports whether the statement produces output rows.
	Reader() bool

	// All executes a reader statement and returns every produced row.
	All(ctx context.Context, args []any) ([]Row, error)

	// Run executes a writer statement.
	Run(ctx context.Context, args []any) (RunResult, error)

	Close() error
}

// Row is one output row keyed by column name.
type Row map[string]any

// RunResult is what the engine reports after running a writer statement.
//
// Both fields are raw engine values: nil means the engine did not report
// one. The executor coerces them into big integers.
type RunResult struct {
	Changes         any
	LastInsertRowID any
}
