package note

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Keekuk/notesnook/internal/infrastructure/database"
	"github.com/google/uuid"
)

// Executor runs one SQL statement and returns its normalized result.
// *database.Connection satisfies it.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...any) (*database.QueryResult, error)
}

// Repository defines the interface for note persistence.
type Repository interface {
	Create(ctx context.Context, n *Note) error
	Get(ctx context.Context, id string) (*Note, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Update(ctx context.Context, n *Note) error
	Search(ctx context.Context, query string, filter Filter) (*ListResult, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on top of an Executor.
type SQLiteRepository struct {
	db  Executor
	now func() time.Time
}

// NewSQLiteRepository creates a note repository.
func NewSQLiteRepository(db Executor) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const noteColumns = `id, title, content, pinned, created_at, updated_at`

// Create validates n, assigns an ID and timestamps when missing, and inserts it.
func (r *SQLiteRepository) Create(ctx context.Context, n *Note) error {
	if err := ValidateNote(n); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	_, err := r.db.Execute(ctx,
		`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, boolToInt(n.Pinned),
		n.CreatedAt.UnixMilli(), n.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	return nil
}

// Get returns the note with the given ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Note, error) {
	res, err := r.db.Execute(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying note: %w", err)
	}
	if len(res.Rows) == 0 {
		return nil, ErrNoteNotFound
	}
	n, err := scanNote(res.Rows[0])
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// List returns notes with pinned notes first, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	return r.page(ctx, "", nil, filter)
}

// Search returns notes whose title or content contains query.
// Matching is case-insensitive for ASCII letters.
func (r *SQLiteRepository) Search(ctx context.Context, query string, filter Filter) (*ListResult, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return r.page(ctx,
		`(title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\')`,
		[]any{pattern, pattern},
		filter,
	)
}

// page runs the count and select queries for List and Search.
func (r *SQLiteRepository) page(ctx context.Context, cond string, args []any, filter Filter) (*ListResult, error) {
	filter = clampFilter(filter)

	var where []string
	if cond != "" {
		where = append(where, cond)
	}
	if filter.PinnedOnly {
		where = append(where, "pinned = 1")
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	countRes, err := r.db.Execute(ctx, `SELECT COUNT(*) AS total FROM notes`+whereClause, args...)
	if err != nil {
		return nil, fmt.Errorf("counting notes: %w", err)
	}
	total := 0
	if len(countRes.Rows) > 0 {
		if v, ok := countRes.Rows[0]["total"].(int64); ok {
			total = int(v)
		}
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	res, err := r.db.Execute(ctx,
		`SELECT `+noteColumns+` FROM notes`+whereClause+
			` ORDER BY pinned DESC, updated_at DESC, id LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	notes := make([]Note, 0, len(res.Rows))
	for _, row := range res.Rows {
		n, err := scanNote(row)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}

	return &ListResult{
		Notes:  notes,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Update replaces title, content and pinned state and bumps UpdatedAt.
func (r *SQLiteRepository) Update(ctx context.Context, n *Note) error {
	if err := ValidateNote(n); err != nil {
		return err
	}
	n.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)

	res, err := r.db.Execute(ctx,
		`UPDATE notes SET title = ?, content = ?, pinned = ?, updated_at = ? WHERE id = ?`,
		n.Title, n.Content, boolToInt(n.Pinned), n.UpdatedAt.UnixMilli(), n.ID,
	)
	if err != nil {
		return fmt.Errorf("updating note: %w", err)
	}
	if noRowsAffected(res) {
		return ErrNoteNotFound
	}
	return nil
}

// Delete removes the note with the given ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Execute(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}
	if noRowsAffected(res) {
		return ErrNoteNotFound
	}
	return nil
}

func noRowsAffected(res *database.QueryResult) bool {
	return res.RowsAffected == nil || res.RowsAffected.Sign() == 0
}

// scanNote maps one result row to a Note.
func scanNote(row database.Row) (Note, error) {
	var n Note
	var ok bool

	if n.ID, ok = row["id"].(string); !ok {
		return Note{}, fmt.Errorf("scanning note: id has type %T", row["id"])
	}
	if n.Title, ok = row["title"].(string); !ok {
		return Note{}, fmt.Errorf("scanning note %s: title has type %T", n.ID, row["title"])
	}
	n.Content, _ = row["content"].(string)

	pinned, _ := row["pinned"].(int64)
	created, _ := row["created_at"].(int64)
	updated, _ := row["updated_at"].(int64)
	n.Pinned = pinned != 0
	n.CreatedAt = time.UnixMilli(created).UTC()
	n.UpdatedAt = time.UnixMilli(updated).UTC()

	return n, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
