package queries

import (
	"context"
	"time"
)

const identityColumns = `id, username, is_superuser, is_active, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (Identity, error) {
	var i Identity
	err := row.Scan(&i.ID, &i.Username, &i.IsSuperuser, &i.IsActive, &i.CreatedAt)
	return i, err
}

const insertIdentity = `INSERT INTO identities (` + identityColumns + `) VALUES (?, ?, ?, ?, ?)`

type InsertIdentityParams struct {
	ID          string
	Username    string
	IsSuperuser bool
	IsActive    bool
	CreatedAt   time.Time
}

func (q *Queries) InsertIdentity(ctx context.Context, arg InsertIdentityParams) error {
	_, err := q.db.ExecContext(ctx, insertIdentity,
		arg.ID,
		arg.Username,
		arg.IsSuperuser,
		arg.IsActive,
		arg.CreatedAt,
	)
	return err
}

const getIdentityByID = `SELECT ` + identityColumns + ` FROM identities WHERE id = ?`

func (q *Queries) GetIdentityByID(ctx context.Context, id string) (Identity, error) {
	return scanIdentity(q.db.QueryRowContext(ctx, getIdentityByID, id))
}

const getIdentityByUsername = `SELECT ` + identityColumns + ` FROM identities WHERE username = ?`

func (q *Queries) GetIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	return scanIdentity(q.db.QueryRowContext(ctx, getIdentityByUsername, username))
}

const listIdentities = `SELECT ` + identityColumns + ` FROM identities ORDER BY username`

func (q *Queries) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := q.db.QueryContext(ctx, listIdentities)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
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

const countIdentities = `SELECT COUNT(*) FROM identities`

func (q *Queries) CountIdentities(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countIdentities).Scan(&count)
	return count, err
}
