package queries

import (
	"context"
	"time"
)

const roleColumns = `id, name, description, permissions, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Permissions, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

const insertRole = `INSERT INTO roles (` + roleColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

type InsertRoleParams struct {
	ID          string
	Name        string
	Description string
	Permissions string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (q *Queries) InsertRole(ctx context.Context, arg InsertRoleParams) error {
	_, err := q.db.ExecContext(ctx, insertRole,
		arg.ID,
		arg.Name,
		arg.Description,
		arg.Permissions,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const updateRole = `UPDATE roles SET description = ?, permissions = ?, updated_at = ? WHERE id = ?`

type UpdateRoleParams struct {
	Description string
	Permissions string
	UpdatedAt   time.Time
	ID          string
}

func (q *Queries) UpdateRole(ctx context.Context, arg UpdateRoleParams) error {
	_, err := q.db.ExecContext(ctx, updateRole,
		arg.Description,
		arg.Permissions,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const getRoleByName = `SELECT ` + roleColumns + ` FROM roles WHERE name = ?`

func (q *Queries) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(q.db.QueryRowContext(ctx, getRoleByName, name))
}

const listRoles = `SELECT ` + roleColumns + ` FROM roles ORDER BY name`

func (q *Queries) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := q.db.QueryContext(ctx, listRoles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
