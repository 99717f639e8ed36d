package api

import (
	"net/http"
	"strconv"

	"github.com/Keekuk/notesnook/internal/audit"
)

// auditSource tags entries written by the HTTP API.
const auditSource = "api"

// recordAudit writes an audit entry. Failures are logged and never fail
// the request that triggered them.
func (s *Server) recordAudit(r *http.Request, action, entityType, entityID string, details map[string]any) {
	if s.audit == nil || action == "" {
		return
	}

	requestID, _ := r.Context().Value(ctxKeyRequestID).(string)
	entry := &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Source:     auditSource,
		RequestID:  requestID,
		Details:    details,
	}
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("recording audit entry failed", "action", action, "error", err)
	}
}

// handleListAudit returns one page of the audit trail, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeBadRequest(w, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = v
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs failed", "error", err, "request_id", r.Context().Value(ctxKeyRequestID))
		writeInternalError(w, "listing audit logs failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
