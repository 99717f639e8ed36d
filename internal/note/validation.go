package note

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength   = 200
	maxContentBytes  = 1 << 20
	defaultListLimit = 50
	maxListLimit     = 200
	maxQueryLength   = 256
)

// ValidateNote checks title and content limits.
// The title is trimmed in place.
func ValidateNote(n *Note) error {
	if n == nil {
		return fmt.Errorf("%w: note is nil", ErrInvalidNote)
	}
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidNote)
	}
	if utf8.RuneCountInString(n.Title) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidNote, maxTitleLength)
	}
	if len(n.Content) > maxContentBytes {
		return fmt.Errorf("%w: content exceeds %d bytes", ErrInvalidNote, maxContentBytes)
	}
	return nil
}

// ValidateQuery checks a search query.
func ValidateQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return fmt.Errorf("%w: search query cannot be empty", ErrInvalidNote)
	}
	if len(q) > maxQueryLength {
		return fmt.Errorf("%w: search query exceeds %d bytes", ErrInvalidNote, maxQueryLength)
	}
	return nil
}

// clampFilter applies the default and maximum page size.
func clampFilter(f Filter) Filter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// escapeLike escapes LIKE wildcards so q matches literally.
func escapeLike(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(q)
}
