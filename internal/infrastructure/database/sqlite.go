package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// SQLite engine constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// memoryPath opens a private in-memory database.
	memoryPath = ":memory:"
)

// keyPragmaPattern matches "PRAGMA key = <value>" with an optional trailing
// semicolon. The value may be quoted.
var keyPragmaPattern = regexp.MustCompile(`(?is)^\s*PRAGMA\s+key\s*=\s*(.+?)\s*;?\s*$`)

// SQLiteConfig contains options for the SQLite engine.
// These map to the database section of config.yaml.
type SQLiteConfig struct {
	// ExtensionDir is where the native search extensions are looked up.
	// Empty means the loader's default search path.
	ExtensionDir string

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// Unsafe opens the connection without SQLite's serialized-mode mutex.
	// Safe here because Connection never issues concurrent calls.
	Unsafe bool

	// Encrypted keeps a file database sealed until a PRAGMA key statement
	// supplies the key. Nothing is read from or written to the file before
	// that, so a fresh file is created encrypted.
	Encrypted bool
}

// SQLiteEngine opens raw SQLCipher driver connections.
//
// Each handle is at most one native connection. There is no database/sql
// pool in between, so cached statements always belong to the connection
// that compiled them.
type SQLiteEngine struct {
	cfg    SQLiteConfig
	driver *sqlite3.SQLiteDriver
}

// NewSQLiteEngine creates an engine with the given options.
func NewSQLiteEngine(cfg SQLiteConfig) *SQLiteEngine {
	return &SQLiteEngine{
		cfg:    cfg,
		driver: &sqlite3.SQLiteDriver{},
	}
}

// Open creates the parent directory if needed and opens the database file.
//
// With Encrypted set the native connection is deferred: the handle stays
// sealed, and every statement fails with ErrDatabaseSealed until the key
// pragma runs.
func (e *SQLiteEngine) Open(ctx context.Context, path string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if path == memoryPath {
		conn, err := e.connect(path, "")
		if err != nil {
			return nil, err
		}
		return &sqliteHandle{engine: e, path: path, conn: conn}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	if e.cfg.Encrypted {
		// Surface path and permission problems now rather than at unlock.
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePermissions)
		if err != nil {
			return nil, fmt.Errorf("opening database file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("opening database file: %w", err)
		}
		return &sqliteHandle{engine: e, path: path}, nil
	}

	conn, err := e.connect(path, "")
	if err != nil {
		return nil, err
	}
	return &sqliteHandle{engine: e, path: path, conn: conn}, nil
}

// connect opens one native connection. A non-empty key is applied before
// any other pragma touches the file.
func (e *SQLiteEngine) connect(path, key string) (*sqlite3.SQLiteConn, error) {
	conn, err := e.driver.Open(e.dsn(path, key))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite connection: %w", err)
	}

	sc, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("unexpected sqlite connection type %T", conn)
	}

	if path != memoryPath {
		// Ignore error - the file may only appear after the first write
		_ = os.Chmod(path, filePermissions) //nolint:errcheck // Intentional
	}

	return sc, nil
}

// dsn builds the connection string.
// See: https://github.com/mutecomm/go-sqlcipher#usage
func (e *SQLiteEngine) dsn(path, key string) string {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		path,
		e.cfg.BusyTimeout*msPerSecond,
	)
	if key != "" {
		dsn += "&_pragma_key=" + url.QueryEscape(key)
	}
	if path != memoryPath {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	if e.cfg.Unsafe {
		dsn += "&_mutex=no"
	}
	return dsn
}

// isNotADatabase reports whether err is SQLite's "file is not a database",
// which is what SQLCipher returns for a missing or wrong key.
func isNotADatabase(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrNotADB
}

// parseKeyPragma extracts the key value from a PRAGMA key statement.
func parseKeyPragma(query string) (string, bool) {
	m := keyPragmaPattern.FindStringSubmatch(query)
	if m == nil {
		return "", false
	}
	v := m[1]
	if n := len(v); n >= 2 && (v[0] == '"' && v[n-1] == '"' || v[0] == '\'' && v[n-1] == '\'') {
		v = v[1 : n-1]
	}
	return v, v != ""
}

// sqliteHandle is one database file and, once readable, its native
// connection. conn is nil while the file is sealed.
type sqliteHandle struct {
	engine *SQLiteEngine
	path   string
	conn   *sqlite3.SQLiteConn
}

// nativeStmt is the subset of the driver statement used here.
type nativeStmt interface {
	driver.Stmt
	driver.StmtExecContext
	driver.StmtQueryContext
}

func (h *sqliteHandle) Prepare(ctx context.Context, query string) (Statement, error) {
	if h.conn == nil {
		if key, ok := parseKeyPragma(query); ok {
			return &keyStatement{h: h, key: key}, nil
		}
		return nil, ErrDatabaseSealed
	}

	ds, err := h.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}

	ns, ok := ds.(nativeStmt)
	if !ok {
		ds.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("unexpected sqlite statement type %T", ds)
	}

	reader, err := hasColumns(ns)
	if err != nil {
		ns.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	return &sqliteStatement{stmt: ns, reader: reader}, nil
}

// hasColumns reports whether the statement yields result columns.
// Opening rows binds nothing and does not step, so no work is executed.
func hasColumns(stmt nativeStmt) (bool, error) {
	rows, err := stmt.QueryContext(context.Background(), nil)
	if err != nil {
		return false, err
	}
	n := len(rows.Columns())
	if err := rows.Close(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (h *sqliteHandle) Exec(ctx context.Context, script string) error {
	if h.conn == nil {
		return ErrDatabaseSealed
	}
	_, err := h.conn.ExecContext(ctx, script, nil)
	return err
}

func (h *sqliteHandle) LoadExtension(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.conn == nil {
		return ErrDatabaseSealed
	}

	lib := name
	if h.engine.cfg.ExtensionDir != "" {
		lib = filepath.Join(h.engine.cfg.ExtensionDir, name)
	}
	// Empty entry point lets SQLite derive it from the library name.
	return h.conn.LoadExtension(lib, "")
}

func (h *sqliteHandle) Close() error {
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	return err
}

// keyStatement applies the key of a sealed handle by opening the native
// connection with it.
//
// Like SQLCipher's own PRAGMA key, a wrong key is not an error: the handle
// stays sealed and the next read reports it.
type keyStatement struct {
	h   *sqliteHandle
	key string
}

func (s *keyStatement) Reader() bool { return false }

func (s *keyStatement) All(ctx context.Context, args []any) ([]Row, error) {
	if _, err := s.Run(ctx, args); err != nil {
		return nil, err
	}
	return []Row{}, nil
}

func (s *keyStatement) Run(ctx context.Context, _ []any) (RunResult, error) {
	if s.h.conn != nil {
		return RunResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	conn, err := s.h.engine.connect(s.h.path, s.key)
	if err != nil {
		if isNotADatabase(err) {
			return RunResult{}, nil
		}
		return RunResult{}, err
	}
	s.h.conn = conn
	return RunResult{}, nil
}

func (s *keyStatement) Close() error { return nil }

// sqliteStatement is a compiled go-sqlite3 statement.
type sqliteStatement struct {
	stmt   nativeStmt
	reader bool
}

func (s *sqliteStatement) Reader() bool {
	return s.reader
}

func (s *sqliteStatement) All(ctx context.Context, args []any) ([]Row, error) {
	rows, err := s.stmt.QueryContext(ctx, namedValues(args))
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Read errors are reported by Next

	cols := rows.Columns()
	dest := make([]driver.Value, len(cols))
	out := []Row{}

	for {
		if err := rows.Next(dest); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = dest[i]
		}
		out = append(out, row)
	}

	return out, nil
}

func (s *sqliteStatement) Run(ctx context.Context, args []any) (RunResult, error) {
	res, err := s.stmt.ExecContext(ctx, namedValues(args))
	if err != nil {
		return RunResult{}, err
	}

	var out RunResult
	if n, err := res.RowsAffected(); err == nil {
		out.Changes = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertRowID = id
	}
	return out, nil
}

func (s *sqliteStatement) Close() error {
	return s.stmt.Close()
}

// namedValues converts positional arguments to driver values.
func namedValues(args []any) []driver.NamedValue {
	if len(args) == 0 {
		return nil
	}
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}
