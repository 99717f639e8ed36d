package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
)

// Native search extensions registered once the database is readable.
const (
	// ExtensionTrigram provides the trigram search index.
	ExtensionTrigram = "sqlite-better-trigram"

	// ExtensionHTMLFTS provides the HTML-aware full-text-search tokenizer.
	ExtensionHTMLFTS = "fts5-html"
)

// Executor limits and defaults.
const (
	// maxPrepareRetries is how many times a failed compile is retried
	// before the error is surfaced.
	maxPrepareRetries = 5

	// maxDeleteAttempts bounds file removal attempts in Delete.
	maxDeleteAttempts = 5

	// defaultDeleteRetryDelay is the fixed pause between removal attempts.
	defaultDeleteRetryDelay = 500 * time.Millisecond

	// readinessSQL is the no-op query used to detect a decrypted database.
	readinessSQL = "SELECT 1"
)

// State is the lifecycle state of a Connection.
type State string

// Connection lifecycle: uninitialized → open → ready → closed.
// A closed connection may be opened again.
const (
	StateUninitialized State = "uninitialized"
	StateOpen          State = "open"
	StateReady         State = "ready"
	StateClosed        State = "closed"
)

// StateChange is delivered to the OnStateChange callback.
type StateChange struct {
	Path       string
	State      State
	Extensions []string
}

// QueryStats describes one Execute or ExecScript call.
type QueryStats struct {
	// Kind is the leading SQL keyword, upper-cased (SELECT, INSERT, ...).
	Kind     string
	Duration time.Duration
	Rows     int
	Failed   bool
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Connection is the prepared-statement cache and query executor over a
// single native database handle.
//
// Thread Safety:
//   - Every operation holds one mutex for its whole duration, so calls run
//     strictly one after another. Callbacks run under that mutex and must not
//     call back into the Connection.
type Connection struct {
	engine           Engine
	extensions       []string
	deleteRetryDelay time.Duration
	removeFile       func(name string) error

	mu               sync.Mutex
	handle           Handle
	path             string
	state            State
	statements       map[string]Statement
	retries          map[string]int
	extensionsLoaded bool

	logger        Logger
	onStateChange func(StateChange)
	onQuery       func(QueryStats)
	hookMu        sync.RWMutex
}

// NewConnection creates an unopened Connection backed by engine.
func NewConnection(engine Engine) *Connection {
	return &Connection{
		engine:           engine,
		extensions:       []string{ExtensionTrigram, ExtensionHTMLFTS},
		deleteRetryDelay: defaultDeleteRetryDelay,
		removeFile:       os.Remove,
		state:            StateUninitialized,
		statements:       make(map[string]Statement),
		retries:          make(map[string]int),
	}
}

// Open opens the database file at path.
//
// Calling Open on an already open Connection logs a warning and leaves the
// existing handle untouched. No decryption key is applied here.
func (c *Connection) Open(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		c.logWarn("database already open, ignoring open request",
			"path", c.path,
			"requested_path", path,
		)
		return nil
	}

	h, err := c.engine.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	c.handle = h
	c.path = path
	c.statements = make(map[string]Statement)
	c.retries = make(map[string]int)
	c.extensionsLoaded = false
	c.setState(StateOpen)

	return nil
}

// Close releases every cached statement and the native handle.
// It is a no-op when the Connection is not open.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.handle == nil {
		return nil
	}

	var errs []error
	for sql, stmt := range c.statements {
		if err := stmt.Close(); err != nil {
			errs = append(errs, annotate(sql, err))
		}
	}
	c.statements = make(map[string]Statement)
	c.retries = make(map[string]int)

	if err := c.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	c.handle = nil
	c.extensionsLoaded = false
	c.setState(StateClosed)

	return errors.Join(errs...)
}

// Delete closes the Connection and removes the database file at path.
//
// Removal is attempted up to five times with a fixed delay in between, to
// ride out transient locks held by the OS or virus scanners. A file that does
// not exist counts as deleted.
func (c *Connection) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.closeLocked(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= maxDeleteAttempts; attempt++ {
		err := c.removeFile(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			c.removeSidecars(path)
			return nil
		}
		lastErr = err
		c.logWarn("database file removal failed",
			"path", path,
			"attempt", attempt,
			"error", err,
		)

		if attempt == maxDeleteAttempts {
			break
		}

		timer := time.NewTimer(c.deleteRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("deleting database %s: %w", path, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("deleting database %s after %d attempts: %w", path, maxDeleteAttempts, lastErr)
}

// removeSidecars drops the WAL and shared-memory files left next to path.
func (c *Connection) removeSidecars(path string) {
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := c.removeFile(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logWarn("database sidecar removal failed", "path", path+suffix, "error", err)
		}
	}
}

// Prepare returns the compiled statement for sql, compiling it on first use.
//
// Compilation failures are treated as transient and retried; once the
// retries are exhausted the counter is reset and the error is returned with
// the SQL text appended.
func (c *Connection) Prepare(ctx context.Context, sql string) (Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prepareLocked(ctx, sql)
}

func (c *Connection) prepareLocked(ctx context.Context, sql string) (Statement, error) {
	if c.handle == nil {
		return nil, ErrNotInitialized
	}

	if stmt, ok := c.statements[sql]; ok {
		return stmt, nil
	}

	for {
		stmt, err := c.handle.Prepare(ctx, sql)
		if err == nil {
			delete(c.retries, sql)
			if stmt != nil {
				c.statements[sql] = stmt
			}
			return stmt, nil
		}

		if c.retries[sql] >= maxPrepareRetries {
			delete(c.retries, sql)
			return nil, annotate(sql, err)
		}
		c.retries[sql]++
	}
}

// Execute runs sql with params and returns the normalized result.
//
// After every call, successful or not, the Connection checks whether the
// database has become readable and, the first time it has, registers the
// search extensions. An extension failure is returned only when the call
// itself succeeded.
func (c *Connection) Execute(ctx context.Context, sql string, params ...any) (result *QueryResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.reportQuery(sql, time.Since(start), result, err)

		if loadErr := c.ensureExtensionsLocked(ctx); loadErr != nil {
			if err == nil {
				result, err = nil, loadErr
				return
			}
			c.logError("search extensions not loaded", "error", loadErr)
		}
	}()

	return c.executeLocked(ctx, sql, params)
}

func (c *Connection) executeLocked(ctx context.Context, sql string, params []any) (*QueryResult, error) {
	stmt, err := c.prepareLocked(ctx, sql)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return emptyResult(), nil
	}

	args, err := normalizeParams(params)
	if err != nil {
		return nil, annotate(sql, err)
	}

	if stmt.Reader() {
		rows, err := stmt.All(ctx, args)
		if err != nil {
			return nil, annotate(sql, err)
		}
		if rows == nil {
			rows = []Row{}
		}
		return &QueryResult{Rows: rows}, nil
	}

	r, err := stmt.Run(ctx, args)
	if err != nil {
		return nil, annotate(sql, err)
	}
	return writerResult(r), nil
}

// ExecScript runs a script of one or more statements without caching them.
// It shares the not-initialized, annotation and extension rules of Execute.
func (c *Connection) ExecScript(ctx context.Context, script string) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() {
		c.reportQuery(script, time.Since(start), nil, err)

		if loadErr := c.ensureExtensionsLocked(ctx); loadErr != nil {
			if err == nil {
				err = loadErr
				return
			}
			c.logError("search extensions not loaded", "error", loadErr)
		}
	}()

	if c.handle == nil {
		return ErrNotInitialized
	}
	if err := c.handle.Exec(ctx, script); err != nil {
		return annotate(script, err)
	}
	return nil
}

// IsDatabaseReady reports whether the database accepts a trivial query.
// Before the decryption key is applied this is false, which is not an error.
func (c *Connection) IsDatabaseReady(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReadyLocked(ctx)
}

func (c *Connection) isReadyLocked(ctx context.Context) bool {
	if c.handle == nil {
		return false
	}

	stmt, err := c.handle.Prepare(ctx, readinessSQL)
	if err != nil || stmt == nil {
		return false
	}
	defer stmt.Close() //nolint:errcheck // readiness statement is never reused

	_, err = stmt.All(ctx, nil)
	return err == nil
}

// ensureExtensionsLocked registers the search extensions the first time the
// database is found readable. Until then it does nothing.
func (c *Connection) ensureExtensionsLocked(ctx context.Context) error {
	if c.extensionsLoaded || c.handle == nil {
		return nil
	}
	if !c.isReadyLocked(ctx) {
		return nil
	}

	for _, name := range c.extensions {
		if err := c.handle.LoadExtension(ctx, name); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrExtensionLoad, name, err)
		}
	}

	c.extensionsLoaded = true
	c.logInfo("search extensions loaded", "path", c.path, "extensions", c.extensions)
	c.setState(StateReady)

	return nil
}

// HealthCheck verifies the database is open and readable.
func (c *Connection) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil {
		return ErrNotInitialized
	}
	if !c.isReadyLocked(ctx) {
		return ErrNotReady
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Path returns the path of the open database, or the last one opened.
func (c *Connection) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// ExtensionsLoaded reports whether the search extensions are registered.
func (c *Connection) ExtensionsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extensionsLoaded
}

// RetryCount returns the current compile retry counter for sql.
func (c *Connection) RetryCount(sql string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries[sql]
}

// CachedStatements returns the number of compiled statements held.
func (c *Connection) CachedStatements() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.statements)
}

// SetDeleteRetryDelay changes the pause between removal attempts in Delete.
func (c *Connection) SetDeleteRetryDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteRetryDelay = d
}

// SetLogger sets a logger for lifecycle warnings and errors.
func (c *Connection) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

// SetOnStateChange sets a callback invoked on every lifecycle transition.
func (c *Connection) SetOnStateChange(callback func(StateChange)) {
	c.hookMu.Lock()
	c.onStateChange = callback
	c.hookMu.Unlock()
}

// SetOnQuery sets a callback invoked after every Execute and ExecScript.
func (c *Connection) SetOnQuery(callback func(QueryStats)) {
	c.hookMu.Lock()
	c.onQuery = callback
	c.hookMu.Unlock()
}

func (c *Connection) setState(s State) {
	c.state = s

	c.hookMu.RLock()
	callback := c.onStateChange
	c.hookMu.RUnlock()
	if callback == nil {
		return
	}

	change := StateChange{Path: c.path, State: s}
	if s == StateReady {
		change.Extensions = append([]string(nil), c.extensions...)
	}
	callback(change)
}

func (c *Connection) reportQuery(sql string, d time.Duration, result *QueryResult, err error) {
	c.hookMu.RLock()
	callback := c.onQuery
	c.hookMu.RUnlock()
	if callback == nil {
		return
	}

	stats := QueryStats{
		Kind:     sqlKind(sql),
		Duration: d,
		Failed:   err != nil,
	}
	if result != nil {
		stats.Rows = len(result.Rows)
	}
	callback(stats)
}

// sqlKind returns the leading keyword of sql, upper-cased.
func sqlKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(strings.TrimRight(fields[0], ";("))
}

func (c *Connection) getLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

func (c *Connection) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (c *Connection) logWarn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Connection) logError(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
