package database

import "errors"

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotInitialized is returned when an operation needs an open handle
	// and Open has not been called (or Close has since been called).
	ErrNotInitialized = errors.New("database: not initialized")

	// ErrNotReady is returned by HealthCheck when the database is open but
	// does not accept queries yet (typically before decryption).
	ErrNotReady = errors.New("database: not ready")

	// ErrUnsupportedParam is returned when a bind parameter is not one of
	// number, text, blob, array of numbers, big integer or nil.
	ErrUnsupportedParam = errors.New("database: unsupported bind parameter")

	// ErrExtensionLoad is returned when a search extension cannot be
	// registered after the database became readable.
	ErrExtensionLoad = errors.New("database: loading extension failed")

	// ErrDatabaseSealed is returned by an encrypted engine for any statement
	// other than PRAGMA key until a working key has been applied.
	ErrDatabaseSealed = errors.New("database: file is encrypted and no key has been applied")
)

// QueryError annotates an engine error with the SQL text that caused it.
//
// The SQL is appended to the message so failures surfaced to callers can be
// traced back to the statement without extra logging.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return e.Err.Error() + ": " + e.SQL
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// annotate wraps err with the SQL text unless it already carries it.
func annotate(sql string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) && qe.SQL == sql {
		return err
	}
	return &QueryError{SQL: sql, Err: err}
}
