package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Keekuk/notesnook/internal/audit"
	"github.com/Keekuk/notesnook/internal/infrastructure/mqtt"
	"github.com/Keekuk/notesnook/internal/note"
)

// noteRequest is the body of create and update requests.
type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Pinned  bool   `json:"pinned"`
}

// handleListNotes returns one page of notes.
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	res, err := s.notes.List(r.Context(), filter)
	if err != nil {
		s.writeNoteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSearchNotes returns notes matching the q parameter.
func (s *Server) handleSearchNotes(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	res, err := s.notes.Search(r.Context(), r.URL.Query().Get("q"), filter)
	if err != nil {
		s.writeNoteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCreateNote creates a note and broadcasts note.created.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	n := &note.Note{Title: req.Title, Content: req.Content, Pinned: req.Pinned}
	if err := s.notes.Create(r.Context(), n); err != nil {
		s.writeNoteError(w, r, err)
		return
	}

	s.noteChanged(r, ChannelNoteCreated, mqtt.NoteCreated, n.ID, n.Title, n)
	writeJSON(w, http.StatusCreated, n)
}

// handleGetNote returns a single note.
func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeNoteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleUpdateNote replaces a note's title, content and pinned flag.
func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	existing, err := s.notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeNoteError(w, r, err)
		return
	}

	existing.Title = req.Title
	existing.Content = req.Content
	existing.Pinned = req.Pinned
	if err := s.notes.Update(r.Context(), existing); err != nil {
		s.writeNoteError(w, r, err)
		return
	}

	s.noteChanged(r, ChannelNoteUpdated, mqtt.NoteUpdated, existing.ID, existing.Title, existing)
	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteNote deletes a note and broadcasts note.deleted.
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notes.Delete(r.Context(), id); err != nil {
		s.writeNoteError(w, r, err)
		return
	}

	s.noteChanged(r, ChannelNoteDeleted, mqtt.NoteDeleted, id, "", map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// noteChanged fans a mutation out to WebSocket clients, the event bus and
// the audit trail.
func (s *Server) noteChanged(r *http.Request, channel, kind, id, title string, payload any) {
	if s.hub != nil {
		s.hub.Broadcast(channel, payload)
	}
	if s.events != nil {
		if err := s.events.PublishNoteEvent(kind, id, title); err != nil {
			s.logger.Warn("publishing note event failed", "kind", kind, "note_id", id, "error", err)
		}
	}

	var details map[string]any
	if title != "" {
		details = map[string]any{"title": title}
	}
	s.recordAudit(r, auditActions[kind], audit.EntityNote, id, details)
}

// auditActions maps event kinds to audit actions.
var auditActions = map[string]string{
	mqtt.NoteCreated: audit.ActionCreate,
	mqtt.NoteUpdated: audit.ActionUpdate,
	mqtt.NoteDeleted: audit.ActionDelete,
}

// writeNoteError maps repository errors to HTTP responses.
func (s *Server) writeNoteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, note.ErrNoteNotFound):
		writeNotFound(w, "note not found")
	case errors.Is(err, note.ErrInvalidNote):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("note operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "note operation failed")
	}
}

// parseFilter reads limit, offset and pinned query parameters.
// It writes a 400 response and returns false on malformed input.
func parseFilter(w http.ResponseWriter, r *http.Request) (note.Filter, bool) {
	q := r.URL.Query()
	var f note.Filter

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &f.Limit},
		{"offset", &f.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeBadRequest(w, p.name+" must be a non-negative integer")
			return note.Filter{}, false
		}
		*p.dst = v
	}

	if raw := q.Get("pinned"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "pinned must be a boolean")
			return note.Filter{}, false
		}
		f.PinnedOnly = v
	}

	return f, true
}
