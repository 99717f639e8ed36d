package database

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// errFlaky is returned by fakeHandle.Prepare while failures are scripted.
var errFlaky = errors.New("flaky prepare")

// errLocked mimics the engine error before the decryption key is applied.
var errLocked = errors.New("file is not a database")

// fakeEngine hands out a single scripted fakeHandle.
type fakeEngine struct {
	handle  *fakeHandle
	opens   int
	openErr error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{handle: newFakeHandle()}
}

func (e *fakeEngine) Open(_ context.Context, _ string) (Handle, error) {
	e.opens++
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.handle.closed = false
	return e.handle, nil
}

// fakeHandle records calls and simulates an encrypted database.
//
// Until a statement starting with "PRAGMA key" runs, every statement other
// than the key pragma fails at execution like a still-encrypted file does.
type fakeHandle struct {
	locked       bool
	prepareFails map[string]int
	prepares     map[string]int
	loaded       []string
	loadErr      error
	changes      any
	lastInsertID any
	rows         []Row
	runErr       error
	closed       bool
	stmtCloses   int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		prepareFails: make(map[string]int),
		prepares:     make(map[string]int),
		changes:      int64(1),
		lastInsertID: int64(1),
	}
}

func (h *fakeHandle) Prepare(_ context.Context, sql string) (Statement, error) {
	h.prepares[sql]++
	if n := h.prepareFails[sql]; n != 0 {
		if n > 0 {
			h.prepareFails[sql] = n - 1
		}
		return nil, errFlaky
	}
	reader := strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT")
	return &fakeStatement{h: h, sql: sql, reader: reader}, nil
}

func (h *fakeHandle) Exec(_ context.Context, script string) error {
	if h.locked {
		return errLocked
	}
	return nil
}

func (h *fakeHandle) LoadExtension(_ context.Context, name string) error {
	if h.loadErr != nil {
		return h.loadErr
	}
	h.loaded = append(h.loaded, name)
	return nil
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type fakeStatement struct {
	h      *fakeHandle
	sql    string
	reader bool
}

func (s *fakeStatement) Reader() bool { return s.reader }

func (s *fakeStatement) All(_ context.Context, _ []any) ([]Row, error) {
	if s.h.locked {
		return nil, errLocked
	}
	if s.sql == readinessSQL {
		return []Row{{"1": int64(1)}}, nil
	}
	return s.h.rows, nil
}

func (s *fakeStatement) Run(_ context.Context, _ []any) (RunResult, error) {
	if strings.HasPrefix(s.sql, "PRAGMA key") {
		s.h.locked = false
		return RunResult{}, nil
	}
	if s.h.locked {
		return RunResult{}, errLocked
	}
	if s.h.runErr != nil {
		return RunResult{}, s.h.runErr
	}
	return RunResult{Changes: s.h.changes, LastInsertRowID: s.h.lastInsertID}, nil
}

func (s *fakeStatement) Close() error {
	s.h.stmtCloses++
	return nil
}

// openFakeConn returns an open Connection over a fresh fakeEngine.
func openFakeConn(t *testing.T) (*Connection, *fakeHandle) {
	t.Helper()

	engine := newFakeEngine()
	conn := NewConnection(engine)
	if err := conn.Open(context.Background(), "notes.db"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return conn, engine.handle
}

// extensionlessEngine wraps a real engine and records extension loads
// instead of loading native libraries that are absent in tests.
type extensionlessEngine struct {
	Engine
	loaded *[]string
}

func (e extensionlessEngine) Open(ctx context.Context, path string) (Handle, error) {
	h, err := e.Engine.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return extensionlessHandle{Handle: h, loaded: e.loaded}, nil
}

type extensionlessHandle struct {
	Handle
	loaded *[]string
}

func (h extensionlessHandle) LoadExtension(_ context.Context, name string) error {
	*h.loaded = append(*h.loaded, name)
	return nil
}

// openTestConn opens a real SQLite database in a temporary directory.
func openTestConn(t *testing.T) (*Connection, *[]string) {
	t.Helper()
	return openRecordingConn(t, SQLiteConfig{BusyTimeout: 5}, filepath.Join(t.TempDir(), "notes.db"))
}

// openRecordingConn opens dbPath with a real engine built from cfg.
// Extension loads are recorded in the returned slice.
func openRecordingConn(t *testing.T, cfg SQLiteConfig, dbPath string) (*Connection, *[]string) {
	t.Helper()

	loaded := &[]string{}
	engine := extensionlessEngine{
		Engine: NewSQLiteEngine(cfg),
		loaded: loaded,
	}
	conn := NewConnection(engine)

	if err := conn.Open(context.Background(), dbPath); err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close() //nolint:errcheck // Test cleanup
	})

	return conn, loaded
}
