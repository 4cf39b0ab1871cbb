package queries

import (
	"context"
	"database/sql"
	"time"
)

const userRoleColumns = `ur.id, ur.user_id, ur.role_id, ur.assigned_by, ur.assigned_at, ur.is_active`

func scanUserRole(row interface{ Scan(...any) error }) (UserRole, error) {
	var ur UserRole
	err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedBy, &ur.AssignedAt, &ur.IsActive)
	return ur, err
}

const getUserRole = `SELECT ` + userRoleColumns + ` FROM user_roles ur WHERE ur.user_id = ? AND ur.role_id = ?`

func (q *Queries) GetUserRole(ctx context.Context, userID, roleID string) (UserRole, error) {
	return scanUserRole(q.db.QueryRowContext(ctx, getUserRole, userID, roleID))
}

const insertUserRole = `INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at, is_active)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertUserRoleParams struct {
	ID         string
	UserID     string
	RoleID     string
	AssignedBy sql.NullString
	AssignedAt time.Time
	IsActive   bool
}

func (q *Queries) InsertUserRole(ctx context.Context, arg InsertUserRoleParams) error {
	_, err := q.db.ExecContext(ctx, insertUserRole,
		arg.ID,
		arg.UserID,
		arg.RoleID,
		arg.AssignedBy,
		arg.AssignedAt,
		arg.IsActive,
	)
	return err
}

const activateUserRole = `UPDATE user_roles SET is_active = 1, assigned_by = ?, assigned_at = ? WHERE id = ?`

type ActivateUserRoleParams struct {
	AssignedBy sql.NullString
	AssignedAt time.Time
	ID         string
}

func (q *Queries) ActivateUserRole(ctx context.Context, arg ActivateUserRoleParams) error {
	_, err := q.db.ExecContext(ctx, activateUserRole, arg.AssignedBy, arg.AssignedAt, arg.ID)
	return err
}

const deactivateUserRole = `UPDATE user_roles SET is_active = 0 WHERE user_id = ? AND role_id = ? AND is_active = 1`

// DeactivateUserRole returns the number of assignments that were active.
func (q *Queries) DeactivateUserRole(ctx context.Context, userID, roleID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deactivateUserRole, userID, roleID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listUserRoles = `SELECT ` + userRoleColumns + `,
r.id, r.name, r.description, r.permissions, r.created_at, r.updated_at
FROM user_roles ur JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = ? AND (? = 0 OR ur.is_active = 1)
ORDER BY r.name`

func (q *Queries) ListUserRoles(ctx context.Context, userID string, activeOnly bool) ([]UserRoleRow, error) {
	rows, err := q.db.QueryContext(ctx, listUserRoles, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UserRoleRow
	for rows.Next() {
		var i UserRoleRow
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.RoleID,
			&i.AssignedBy,
			&i.AssignedAt,
			&i.IsActive,
			&i.Role.ID,
			&i.Role.Name,
			&i.Role.Description,
			&i.Role.Permissions,
			&i.Role.CreatedAt,
			&i.Role.UpdatedAt,
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
