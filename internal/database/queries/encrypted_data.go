package queries

import (
	"context"
	"time"
)

const upsertEncryptedData = `INSERT INTO encrypted_data (identifier, data, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (identifier) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`

type UpsertEncryptedDataParams struct {
	Identifier string
	Data       []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (q *Queries) UpsertEncryptedData(ctx context.Context, arg UpsertEncryptedDataParams) error {
	_, err := q.db.ExecContext(ctx, upsertEncryptedData,
		arg.Identifier,
		arg.Data,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getEncryptedData = `SELECT identifier, data, created_at, updated_at FROM encrypted_data WHERE identifier = ?`

func (q *Queries) GetEncryptedData(ctx context.Context, identifier string) (EncryptedDatum, error) {
	var d EncryptedDatum
	err := q.db.QueryRowContext(ctx, getEncryptedData, identifier).Scan(
		&d.Identifier,
		&d.Data,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}
