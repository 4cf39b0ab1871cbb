package queries

import (
	"context"
	"database/sql"
	"time"
)

const backupRecordColumns = `id, backup_type, file_path, file_size, checksum, is_encrypted, retention_date, created_by, created_at`

func scanBackupRecord(row interface{ Scan(...any) error }) (BackupRecord, error) {
	var r BackupRecord
	err := row.Scan(
		&r.ID,
		&r.BackupType,
		&r.FilePath,
		&r.FileSize,
		&r.Checksum,
		&r.IsEncrypted,
		&r.RetentionDate,
		&r.CreatedBy,
		&r.CreatedAt,
	)
	return r, err
}

func (q *Queries) listBackupRecords(ctx context.Context, query string, args ...any) ([]BackupRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BackupRecord
	for rows.Next() {
		r, err := scanBackupRecord(rows)
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

const insertBackupRecord = `INSERT INTO backup_records (` + backupRecordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertBackupRecordParams struct {
	ID            string
	BackupType    string
	FilePath      string
	FileSize      int64
	Checksum      string
	IsEncrypted   bool
	RetentionDate time.Time
	CreatedBy     sql.NullString
	CreatedAt     time.Time
}

func (q *Queries) InsertBackupRecord(ctx context.Context, arg InsertBackupRecordParams) error {
	_, err := q.db.ExecContext(ctx, insertBackupRecord,
		arg.ID,
		arg.BackupType,
		arg.FilePath,
		arg.FileSize,
		arg.Checksum,
		arg.IsEncrypted,
		arg.RetentionDate,
		arg.CreatedBy,
		arg.CreatedAt,
	)
	return err
}

const getBackupRecord = `SELECT ` + backupRecordColumns + ` FROM backup_records WHERE id = ?`

func (q *Queries) GetBackupRecord(ctx context.Context, id string) (BackupRecord, error) {
	return scanBackupRecord(q.db.QueryRowContext(ctx, getBackupRecord, id))
}

const listBackupRecords = `SELECT ` + backupRecordColumns + ` FROM backup_records
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListBackupRecords(ctx context.Context, limit int64) ([]BackupRecord, error) {
	return q.listBackupRecords(ctx, listBackupRecords, limit)
}

const listBackupRecordsSince = `SELECT ` + backupRecordColumns + ` FROM backup_records
WHERE created_at >= ?
ORDER BY created_at DESC, id DESC`

func (q *Queries) ListBackupRecordsSince(ctx context.Context, since time.Time) ([]BackupRecord, error) {
	return q.listBackupRecords(ctx, listBackupRecordsSince, since)
}

const listExpiredBackupRecords = `SELECT ` + backupRecordColumns + ` FROM backup_records
WHERE retention_date < ?
ORDER BY retention_date, id`

func (q *Queries) ListExpiredBackupRecords(ctx context.Context, before time.Time) ([]BackupRecord, error) {
	return q.listBackupRecords(ctx, listExpiredBackupRecords, before)
}

const deleteBackupRecord = `DELETE FROM backup_records WHERE id = ?`

func (q *Queries) DeleteBackupRecord(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteBackupRecord, id)
	return err
}
