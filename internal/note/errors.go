package note

import "errors"

var (
	// ErrNoteNotFound is returned when a note ID does not exist.
	ErrNoteNotFound = errors.New("note not found")

	// ErrInvalidNote is returned when a note fails validation.
	ErrInvalidNote = errors.New("invalid note")
)
