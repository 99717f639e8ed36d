// Package databasetest opens migrated SQLite connections for tests in other
// packages.
//
// The native search extensions are not available in test environments, so
// extension loads are recorded instead of performed.
package databasetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Keekuk/notesnook/internal/infrastructure/database"
	_ "github.com/Keekuk/notesnook/migrations" // registers the schema
)

// Engine wraps a real SQLite engine and records extension loads.
type Engine struct {
	inner database.Engine

	mu     sync.Mutex
	loaded []string
}

// NewEngine returns an Engine over a plaintext SQLiteEngine.
func NewEngine() *Engine {
	return &Engine{inner: database.NewSQLiteEngine(database.SQLiteConfig{BusyTimeout: 5})}
}

// NewEncryptedEngine returns an Engine whose files stay sealed until a
// PRAGMA key statement runs.
func NewEncryptedEngine() *Engine {
	return &Engine{inner: database.NewSQLiteEngine(database.SQLiteConfig{BusyTimeout: 5, Encrypted: true})}
}

// Open opens path with the wrapped engine.
func (e *Engine) Open(ctx context.Context, path string) (database.Handle, error) {
	h, err := e.inner.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return &handle{Handle: h, engine: e}, nil
}

// Loaded returns the extension names requested so far, in order.
func (e *Engine) Loaded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.loaded...)
}

type handle struct {
	database.Handle
	engine *Engine
}

func (h *handle) LoadExtension(_ context.Context, name string) error {
	h.engine.mu.Lock()
	h.engine.loaded = append(h.engine.loaded, name)
	h.engine.mu.Unlock()
	return nil
}

// Open returns a migrated Connection on a fresh file in t.TempDir.
// The connection is closed when the test ends.
func Open(t testing.TB) *database.Connection {
	t.Helper()

	conn := open(t, NewEngine())
	if err := conn.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return conn
}

// OpenEncrypted returns a sealed Connection on a fresh file in t.TempDir.
// Nothing is readable until a PRAGMA key statement runs, so migrations are
// left to the caller.
func OpenEncrypted(t testing.TB) *database.Connection {
	t.Helper()
	return open(t, NewEncryptedEngine())
}

func open(t testing.TB, engine *Engine) *database.Connection {
	t.Helper()

	conn := database.NewConnection(engine)
	if err := conn.Open(context.Background(), filepath.Join(t.TempDir(), "notes.db")); err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close() //nolint:errcheck // Test cleanup
	})
	return conn
}
