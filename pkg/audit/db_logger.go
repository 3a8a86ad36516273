package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/fieldwork/pkg/contextkeys"
)

// Logger records audit entries. Implementations must never fail a
// request over an audit error.
type Logger interface {
	Record(ctx context.Context, entry Entry)
}

// DBLogger persists audit entries to the database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db}
}

// Record writes an audit entry. Errors are swallowed: auditing is best
// effort and must not fail the request it describes.
func (l *DBLogger) Record(ctx context.Context, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}

	query := `
		INSERT INTO audit_log (user_id, action, resource_type, resource_id, status, detail, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, _ = l.db.ExecContext(ctx, query,
		entry.UserID, string(entry.Action), entry.ResourceType, entry.ResourceID,
		string(entry.Status), entry.Detail, entry.RequestID, entry.CreatedAt)
}

// List returns audit entries matching the query, most recent first
func (l *DBLogger) List(ctx context.Context, q Query) ([]*Entry, error) {
	query := `
		SELECT id, user_id, action, resource_type, resource_id, status, detail, request_id, created_at
		FROM audit_log`

	var clauses []string
	var args []interface{}
	if q.UserID != 0 {
		args = append(args, q.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if q.ResourceType != "" {
		args = append(args, q.ResourceType)
		clauses = append(clauses, fmt.Sprintf("resource_type = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"

	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		e := &Entry{}
		var userID sql.NullInt64
		var resourceID, detail, requestID sql.NullString
		var action, status string
		if err := rows.Scan(&e.ID, &userID, &action, &e.ResourceType, &resourceID, &status, &detail, &requestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.UserID = userID.Int64
		e.Action = Action(action)
		e.Status = Status(status)
		e.ResourceID = resourceID.String
		e.Detail = detail.String
		e.RequestID = requestID.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// NopLogger discards all entries
type NopLogger struct{}

// Record implements Logger
func (NopLogger) Record(context.Context, Entry) {}
