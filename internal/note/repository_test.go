package note

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keekuk/notesnook/internal/infrastructure/database/databasetest"
)

// setupTestRepo returns a repository over a migrated database with a
// clock that advances one second per call.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo := NewSQLiteRepository(databasetest.Open(t))
	clock := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func mustCreate(t *testing.T, repo *SQLiteRepository, title, content string, pinned bool) *Note {
	t.Helper()

	n := &Note{Title: title, Content: content, Pinned: pinned}
	if err := repo.Create(context.Background(), n); err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return n
}

func TestCreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created := mustCreate(t, repo, "  Groceries  ", "milk, eggs", true)

	if created.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}
	if created.Title != "Groceries" {
		t.Errorf("Title = %q, want trimmed %q", created.Title, "Groceries")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Groceries" || got.Content != "milk, eggs" || !got.Pinned {
		t.Errorf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created.CreatedAt)
	}
	if !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, created.UpdatedAt)
	}
}

func TestCreateInvalid(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Create(context.Background(), &Note{Title: "   "})
	if !errors.Is(err, ErrInvalidNote) {
		t.Errorf("Create() error = %v, want ErrInvalidNote", err)
	}
}

func TestGetNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Get() error = %v, want ErrNoteNotFound", err)
	}
}

func TestListOrdering(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	older := mustCreate(t, repo, "Older", "", false)
	pinned := mustCreate(t, repo, "Pinned", "", true)
	newer := mustCreate(t, repo, "Newer", "", false)

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 {
		t.Errorf("Total = %d, want 3", res.Total)
	}
	if res.Limit != defaultListLimit {
		t.Errorf("Limit = %d, want %d", res.Limit, defaultListLimit)
	}

	want := []string{pinned.ID, newer.ID, older.ID}
	if len(res.Notes) != len(want) {
		t.Fatalf("len(Notes) = %d, want %d", len(res.Notes), len(want))
	}
	for i, id := range want {
		if res.Notes[i].ID != id {
			t.Errorf("Notes[%d] = %q, want %q", i, res.Notes[i].Title, id)
		}
	}
}

func TestListPagination(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		mustCreate(t, repo, title, "", false)
	}

	tests := []struct {
		name      string
		filter    Filter
		wantCount int
		wantLimit int
	}{
		{"first page", Filter{Limit: 2}, 2, 2},
		{"last page", Filter{Limit: 2, Offset: 4}, 1, 2},
		{"past end", Filter{Limit: 2, Offset: 10}, 0, 2},
		{"limit clamped", Filter{Limit: 1000}, 5, maxListLimit},
		{"negative offset", Filter{Limit: 3, Offset: -1}, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.Notes) != tt.wantCount {
				t.Errorf("len(Notes) = %d, want %d", len(res.Notes), tt.wantCount)
			}
			if res.Total != 5 {
				t.Errorf("Total = %d, want 5", res.Total)
			}
			if res.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", res.Limit, tt.wantLimit)
			}
		})
	}
}

func TestListPinnedOnly(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, "Loose", "", false)
	pinned := mustCreate(t, repo, "Pinned", "", true)

	res, err := repo.List(ctx, Filter{PinnedOnly: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Notes) != 1 || res.Notes[0].ID != pinned.ID {
		t.Errorf("List(PinnedOnly) = %+v", res)
	}
}

func TestSearch(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, "Shopping list", "Milk and BREAD", false)
	mustCreate(t, repo, "Meeting", "discuss the bread budget", false)
	mustCreate(t, repo, "100% done", "nothing to see", false)
	mustCreate(t, repo, "snake_case", "", false)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"content match case-insensitive", "bread", 2},
		{"title match", "shopping", 1},
		{"no match", "zebra", 0},
		{"percent is literal", "%", 1},
		{"underscore is literal", "_", 1},
		{"trimmed", "  meeting  ", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.Search(ctx, tt.query, Filter{})
			if err != nil {
				t.Fatalf("Search(%q) error = %v", tt.query, err)
			}
			if res.Total != tt.want || len(res.Notes) != tt.want {
				t.Errorf("Search(%q) total=%d len=%d, want %d", tt.query, res.Total, len(res.Notes), tt.want)
			}
		})
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Search(context.Background(), " ", Filter{})
	if !errors.Is(err, ErrInvalidNote) {
		t.Errorf("Search() error = %v, want ErrInvalidNote", err)
	}
}

func TestUpdate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	n := mustCreate(t, repo, "Draft", "v1", false)
	createdAt := n.CreatedAt

	n.Title = "Final"
	n.Content = "v2"
	n.Pinned = true
	if err := repo.Update(ctx, n); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Final" || got.Content != "v2" || !got.Pinned {
		t.Errorf("Get() after update = %+v", got)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt changed: %v -> %v", createdAt, got.CreatedAt)
	}
	if !got.UpdatedAt.After(createdAt) {
		t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, createdAt)
	}
}

func TestUpdateNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Update(context.Background(), &Note{ID: "missing", Title: "x"})
	if !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Update() error = %v, want ErrNoteNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	n := mustCreate(t, repo, "Temporary", "", false)

	if err := repo.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, n.ID); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNoteNotFound", err)
	}
	if err := repo.Delete(ctx, n.ID); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNoteNotFound", err)
	}
}
