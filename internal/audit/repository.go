// Package audit records unlocks and note mutations in the audit_logs table.
//
// Entries are written through the same Connection as notes, so nothing is
// recorded while the database is locked.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Keekuk/notesnook/internal/infrastructure/database"
)

// Actions recorded by notesnookd.
const (
	ActionUnlock = "unlock"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Entity types.
const (
	EntityDatabase = "database"
	EntityNote     = "note"
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	RequestID  string         `json:"request_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional: unlock, create, update, delete
	EntityType string // optional: database, note
	EntityID   string // optional: filter by specific entity ID
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Executor runs one SQL statement. *database.Connection satisfies it.
type Executor interface {
	Execute(ctx context.Context, sql string, params ...any) (*database.QueryResult, error)
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db Executor
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db Executor) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	var detailsJSON any
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		detailsJSON = string(b)
	}

	_, err := r.db.Execute(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, source, request_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Action, log.EntityType,
		nullableString(log.EntityID), log.Source, nullableString(log.RequestID),
		detailsJSON, log.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit logs matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countRes, err := r.db.Execute(ctx, "SELECT COUNT(*) AS total FROM audit_logs "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}
	total := 0
	if len(countRes.Rows) > 0 {
		if n, ok := countRes.Rows[0]["total"].(int64); ok {
			total = int(n)
		}
	}

	res, err := r.db.Execute(ctx,
		"SELECT id, action, entity_type, entity_id, source, request_id, details, created_at FROM audit_logs "+
			where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}

	logs := make([]AuditLog, 0, len(res.Rows))
	for _, row := range res.Rows {
		logs = append(logs, scanLog(row))
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// scanLog maps one result row. NULL columns arrive as nil and stay empty.
func scanLog(row database.Row) AuditLog {
	var log AuditLog
	log.ID, _ = row["id"].(string)
	log.Action, _ = row["action"].(string)
	log.EntityType, _ = row["entity_type"].(string)
	log.EntityID, _ = row["entity_id"].(string)
	log.Source, _ = row["source"].(string)
	log.RequestID, _ = row["request_id"].(string)

	if details, ok := row["details"].(string); ok && details != "" {
		var m map[string]any
		if json.Unmarshal([]byte(details), &m) == nil {
			log.Details = m
		}
	}

	createdAt, _ := row["created_at"].(int64)
	log.CreatedAt = time.UnixMilli(createdAt).UTC()

	return log
}
