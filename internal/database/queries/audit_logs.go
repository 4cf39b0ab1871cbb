package queries

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const insertAuditLog = `INSERT INTO audit_logs
(id, user_id, action, resource_type, resource_id, ip_address, user_agent, details, success, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertAuditLogParams struct {
	ID           string
	UserID       sql.NullString
	Action       string
	ResourceType string
	ResourceID   string
	IpAddress    string
	UserAgent    string
	Details      string
	Success      bool
	Timestamp    time.Time
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) error {
	_, err := q.db.ExecContext(ctx, insertAuditLog,
		arg.ID,
		arg.UserID,
		arg.Action,
		arg.ResourceType,
		arg.ResourceID,
		arg.IpAddress,
		arg.UserAgent,
		arg.Details,
		arg.Success,
		arg.Timestamp,
	)
	return err
}

// AuditLogFilter narrows ListAuditLogs and CountAuditLogs. Zero fields match everything.
type AuditLogFilter struct {
	Username string // substring, case-insensitive for ASCII
	Action   string
	From     time.Time
	To       time.Time
	Success  sql.NullBool
	Limit    int64
	Offset   int64
}

// where renders the filter as a WHERE clause over audit_logs a LEFT JOIN identities i.
func (f AuditLogFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Username != "" {
		conds = append(conds, "i.username LIKE '%' || ? || '%'")
		args = append(args, f.Username)
	}
	if f.Action != "" {
		conds = append(conds, "a.action = ?")
		args = append(args, f.Action)
	}
	if !f.From.IsZero() {
		conds = append(conds, "a.timestamp >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "a.timestamp < ?")
		args = append(args, f.To)
	}
	if f.Success.Valid {
		conds = append(conds, "a.success = ?")
		args = append(args, f.Success.Bool)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const auditLogFrom = ` FROM audit_logs a LEFT JOIN identities i ON i.id = a.user_id`

func (q *Queries) ListAuditLogs(ctx context.Context, f AuditLogFilter) ([]AuditLogRow, error) {
	where, args := f.where()
	query := `SELECT a.id, a.user_id, a.action, a.resource_type, a.resource_id, a.ip_address,
a.user_agent, a.details, a.success, a.timestamp, i.username` + auditLogFrom + where +
		` ORDER BY a.timestamp DESC, a.rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLogRow
	for rows.Next() {
		var i AuditLogRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Action,
			&i.ResourceType,
			&i.ResourceID,
			&i.IpAddress,
			&i.UserAgent,
			&i.Details,
			&i.Success,
			&i.Timestamp,
			&i.Username,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queries) CountAuditLogs(ctx context.Context, f AuditLogFilter) (int64, error) {
	where, args := f.where()
	var count int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*)`+auditLogFrom+where, args...).Scan(&count)
	return count, err
}
