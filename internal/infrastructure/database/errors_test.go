package database

import (
	"errors"
	"fmt"
	"testing"
)

func TestQueryError(t *testing.T) {
	base := errors.New("no such table: notes")
	err := annotate("SELECT * FROM notes", base)

	if got, want := err.Error(), "no such table: notes: SELECT * FROM notes"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, base) {
		t.Error("errors.Is() = false, want wrapped engine error")
	}

	var qe *QueryError
	if !errors.As(err, &qe) || qe.SQL != "SELECT * FROM notes" {
		t.Errorf("errors.As() did not expose the SQL, got %v", qe)
	}
}

func TestAnnotate(t *testing.T) {
	if annotate("SELECT 1", nil) != nil {
		t.Error("annotate(nil) should be nil")
	}

	once := annotate("SELECT 1", errors.New("boom"))
	twice := annotate("SELECT 1", fmt.Errorf("retrying: %w", once))
	if got, want := twice.Error(), "retrying: boom: SELECT 1"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	other := annotate("SELECT 2", once)
	if got, want := other.Error(), "boom: SELECT 1: SELECT 2"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
