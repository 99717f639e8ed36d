package note

import "time"

// Note is a single user note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter controls which notes List and Search return.
type Filter struct {
	PinnedOnly bool
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of notes.
type ListResult struct {
	Notes  []Note `json:"notes"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}
